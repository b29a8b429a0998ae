// lambda serves the efficiency computation behind an AWS Lambda function URL.
// The request body carries the drop data in the drops file format plus
// optional allow, deny and threshold fields; the response is the full result.
package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	logger.SetOutput(os.Stderr, level, "json")

	lambda.Start(handler)
}
