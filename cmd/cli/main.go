// Command junction-walk runs junction-walk simulations, inspects trace files
// and serves the HTTP API.
//
// With no subcommand flags, "run" reads a SimulationInput JSON from a file
// argument (or stdin) and writes the SimulationLog JSON to stdout.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
