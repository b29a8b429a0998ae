package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/lawnchairsociety/dropefficiency/internal/drops"
	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

type computeRequest struct {
	Drops     json.RawMessage `json:"drops"`
	Allow     []string        `json:"allow"`
	Deny      []string        `json:"deny"`
	Threshold *float64        `json:"threshold"`
}

type computeResponse struct {
	Policy string `json:"policy"`
	Nodes  int    `json:"nodes"`
	*efficiency.Result
}

func handler(_ context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errResp(http.StatusBadRequest, "invalid base64 body")
		}
		body = string(decoded)
	}

	var req computeRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return errResp(http.StatusBadRequest, "invalid JSON: "+err.Error())
	}
	if len(req.Drops) == 0 {
		return errResp(http.StatusBadRequest, "missing drops field")
	}

	ds, err := drops.Parse(req.Drops)
	if err != nil {
		return errResp(http.StatusBadRequest, err.Error())
	}

	opts := efficiency.DefaultOptions()
	opts.Policy = efficiency.NewPolicy(req.Allow, req.Deny)
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}

	res, err := efficiency.Compute(ds, opts)
	if err != nil {
		var ve *drops.ValidationError
		if errors.As(err, &ve) {
			return errResp(http.StatusUnprocessableEntity, err.Error())
		}
		return errResp(http.StatusBadRequest, err.Error())
	}
	logger.Info("Computed rankings", "nodes", ds.NodeCount(), "items", len(res.BestAPD), "unranked", len(res.Unranked))

	out, err := json.Marshal(computeResponse{Policy: opts.Policy.Mode(), Nodes: ds.NodeCount(), Result: res})
	if err != nil {
		logger.Errorf("Failed to encode result: %v", err)
		return errResp(http.StatusInternalServerError, "failed to encode result")
	}
	return events.LambdaFunctionURLResponse{StatusCode: http.StatusOK, Headers: jsonHeader, Body: string(out)}, nil
}

func errResp(code int, msg string) (events.LambdaFunctionURLResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.LambdaFunctionURLResponse{StatusCode: code, Headers: jsonHeader, Body: string(body)}, nil
}
