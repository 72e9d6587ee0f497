package main

import (
	"fmt"
	"io"
	"os"
)

const productName = "encodly"

var version = "dev"

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "encode":
		return runEncode(args[1:])
	case "decode":
		return runDecode(args[1:])
	case "detect":
		return runDetect(args[1:])
	case "batch":
		return runBatch(args[1:])
	case "version", "--version":
		fmt.Fprintf(stdout, "%s %s\n", productName, version)
		return 0
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(stderr, `%s converts bytes to and from a 64-symbol text encoding.

Usage:
  %[1]s encode [TEXT] [--file PATH] [--format KEY] [--json]
  %[1]s decode [TEXT] [--file PATH] [--out PATH]
  %[1]s detect PATH
  %[1]s batch PATH... [--out DIR]
  %[1]s version

Every command accepts --config, --alphabet, --symbols, --padding, --worker,
--worker-addr, --chunked, --log-level and --metrics. Run a command with -h
for details.
`, productName)
}
