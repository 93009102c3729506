package main

import (
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/mkverify/internal/version"
)

// Exit codes. A completed verification exits with exitSafe or exitUnsafe.
const (
	exitSafe   = 0
	exitError  = 1
	exitUnsafe = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitError
	}

	command, rest := args[0], args[1:]
	switch command {
	case "verify":
		return handleVerify(rest, stdout, stderr)
	case "runs":
		return handleRuns(rest, stdout, stderr)
	case "serve":
		return handleServe(rest, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return exitSafe
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitSafe
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `mkverify - safety verification for control loops that may miss deadlines

Usage: mkverify <command> [options]

Commands:
  verify     Verify a model: at most m misses in any k consecutive periods
  runs       List runs recorded in a database
  serve      Serve recorded runs and the database debug pages over HTTP
  version    Show mkverify version
  help       Show this help message

Verify Flags:
  -model <file>       Model description (.yaml, required)
  -settings <file>    Numeric settings (.json, defaults built in)
  -db <file>          Record the run in this SQLite database
  -png <file>         Write a PNG of the cell classes (2-D models)
  -html <file>        Write an interactive chart (2-D models)
  -summary            Print per-dimension invariant bounds
  -workers <n>        Concurrent oracle queries (overrides settings)
  -quiet              Suppress phase logs and progress

Exit Status:
  0  SAFE
  2  UNSAFE
  1  invalid input or oracle failure

Examples:
  mkverify verify -model models/stable2d.yaml -png stable2d.png
  mkverify verify -model models/stable2d.yaml -db mkverify.db
  mkverify runs -db mkverify.db
  mkverify serve -db mkverify.db -listen localhost:8080`)
}
