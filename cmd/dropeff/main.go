// dropeff finds the most AP-efficient free quests for farming each material.
//
// Usage:
//
//	dropeff <command> [options]
//
// Commands:
//
//	fetch    - Scrape drop rates from the wiki into the drops file
//	compute  - Rank nodes, export the JSON results, archive the run and print the report
//	show     - Print the report of an archived run
//	history  - Show an item's best node across archived runs
//	runs     - List archived runs
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const defaultConfigPath = "dropefficiency.yaml"

// errUsage means the command line was wrong and usage has been printed.
var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return errUsage
	}

	switch args[0] {
	case "fetch":
		return runFetch(args[1:], stdout)
	case "compute":
		return runCompute(args[1:], stdout)
	case "show":
		return runShow(args[1:], stdout)
	case "history":
		return runHistory(args[1:], stdout)
	case "runs":
		return runRuns(args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage(os.Stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Drop Efficiency

Ranks free quests by how much material value they return per AP, and lists
the best places to farm each material.

Usage: dropeff <command> [options]

Commands:
  fetch     Scrape drop rates from the wiki into the drops file
  compute   Rank nodes, export JSON results, archive the run and print the report
  show      Print the report of an archived run
  history   Show an item's best node across archived runs
  runs      List archived runs

Examples:
  dropeff fetch
  dropeff compute -threshold=0.9 -items="Dragon Fang,Void's Dust"
  dropeff compute -allow="Eternal Ice,Aurora Steel" -no-archive
  dropeff show -run=3
  dropeff history "Dragon Fang"

Every command reads dropefficiency.yaml (override with -config).
Use "dropeff <command> -h" for more information about a command.`)
}
