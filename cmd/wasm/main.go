//go:build js && wasm

// Command wasm exposes the junction-walk engine to the browser via WebAssembly.
// After loading, it registers two global JavaScript functions:
//
//	runSimulation(inputJSON) -> logJSON
//	inspectTrace(traceText) -> reportJSON
//
// runSimulation uses the same SimulationInput and SimulationLog contract as
// the CLI and the HTTP API. There is no filesystem, so the input must carry
// the trace inline in "trace_data". Failures come back as {"error": "..."}.
package main

import (
	"encoding/json"
	"strings"
	"syscall/js"

	"github.com/cxd309/junction-walk/internal/engine"
	"github.com/cxd309/junction-walk/internal/graph"
)

func main() {
	js.Global().Set("runSimulation", js.FuncOf(runSimulation))
	js.Global().Set("inspectTrace", js.FuncOf(inspectTrace))
	select {}
}

func runSimulation(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return jsError("no input provided")
	}
	result, err := engine.RunJSON(args[0].String())
	if err != nil {
		return jsError(err.Error())
	}
	return result
}

func inspectTrace(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return jsError("no trace provided")
	}
	g, stats, err := graph.Parse(strings.NewReader(args[0].String()))
	if err != nil {
		return jsError(err.Error())
	}
	out, err := json.Marshal(map[string]any{
		"report": graph.Analyze(g, 0),
		"parse":  stats,
	})
	if err != nil {
		return jsError(err.Error())
	}
	return string(out)
}

func jsError(msg string) any {
	return map[string]any{"error": msg}
}
