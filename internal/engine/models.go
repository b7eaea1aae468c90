package engine

import (
	"log/slog"
	"time"

	"github.com/cxd309/junction-walk/internal/agent"
	"github.com/cxd309/junction-walk/internal/config"
	"github.com/cxd309/junction-walk/internal/tracecache"
)

// SimulationMeta holds the identity and timing parameters for a simulation run.
type SimulationMeta struct {
	SimulationID string  `json:"simulation_id"`
	RunTime      float64 `json:"run_time"`  // seconds
	TimeStep     float64 `json:"time_step"` // seconds
}

// SimulationInput is the JSON-serialisable input to the engine.
type SimulationInput struct {
	Meta     SimulationMeta        `json:"simulation_meta"`
	Mobility config.MobilityConfig `json:"mobility"`
	// TraceData carries the trace body inline for hosts without a
	// filesystem. When set, Mobility.TraceFile only names it.
	TraceData string        `json:"trace_data,omitempty"`
	AgentList []agent.Agent `json:"agent_list"`
	Seed      uint64        `json:"seed"`
}

// SimulationLogRow is the state of all agents at a single simulation timestep.
type SimulationLogRow struct {
	Timestamp float64          `json:"timestamp"` // seconds
	AgentLogs []agent.AgentLog `json:"agent_logs"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	Meta   SimulationMeta     `json:"simulation_meta"`
	Output []SimulationLogRow `json:"output"`
	// Visits is the final per-junction visit count shared by all agents.
	// It is empty when no agent departed.
	Visits []int `json:"visits"`
}

// Simulation engine state.
type Simulation struct {
	meta     SimulationMeta
	runTime  time.Duration
	timeStep time.Duration
	traceID  string
	source   *tracecache.Registry
	agents   []*agent.SimAgent
	curTime  time.Duration
	logger   *slog.Logger
}
