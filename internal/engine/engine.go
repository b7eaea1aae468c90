// Package engine implements the fixed-step junction-walk simulation loop.
//
// Every agent owns a mobility walker. At each step the engine advances every
// agent to the step's timestamp in list order and records a snapshot. All
// walkers share one graph and one visit ledger through the trace registry, so
// list order decides which agent sees which counts within a step.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cxd309/junction-walk/internal/agent"
	"github.com/cxd309/junction-walk/internal/config"
	"github.com/cxd309/junction-walk/internal/kinematics"
	"github.com/cxd309/junction-walk/internal/logging"
	"github.com/cxd309/junction-walk/internal/mobility"
	"github.com/cxd309/junction-walk/internal/tracecache"
)

// NewSimulation constructs a Simulation from a SimulationInput, binding one
// walker per agent to the trace held by reg. The caller owns reg.
func NewSimulation(input SimulationInput, reg *tracecache.Registry, logger *slog.Logger) (*Simulation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	meta := input.Meta
	if meta.TimeStep <= 0 || math.IsNaN(meta.TimeStep) || math.IsInf(meta.TimeStep, 0) {
		return nil, fmt.Errorf("time_step must be > 0, got %v", meta.TimeStep)
	}
	if meta.RunTime < 0 || math.IsNaN(meta.RunTime) || math.IsInf(meta.RunTime, 0) {
		return nil, fmt.Errorf("run_time must be >= 0, got %v", meta.RunTime)
	}
	if meta.SimulationID == "" {
		meta.SimulationID = uuid.NewString()
	}
	if err := input.Mobility.Validate(); err != nil {
		return nil, err
	}
	if len(input.AgentList) == 0 {
		return nil, errors.New("agent_list is empty")
	}
	if dups := lo.FindDuplicatesBy(input.AgentList, func(a agent.Agent) string { return a.AgentID }); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate agent_id %q", dups[0].AgentID)
	}

	model, err := kinematics.ModelByName(input.Mobility.Model, input.Mobility.Speed)
	if err != nil {
		return nil, fmt.Errorf("building kinematics: %w", err)
	}
	cfg := mobility.Config{
		TraceFile: input.Mobility.TraceFile,
		Reference: input.Mobility.Reference(),
		Model:     model,
	}

	agents := make([]*agent.SimAgent, 0, len(input.AgentList))
	for i, a := range input.AgentList {
		if a.AgentID == "" {
			return nil, fmt.Errorf("agent %d: agent_id is required", i)
		}
		if a.DepartureDelay < 0 {
			return nil, fmt.Errorf("agent %q: departure_delay must be >= 0", a.AgentID)
		}
		w, err := mobility.NewWalker(reg, cfg, mobility.NewRand(input.Seed, uint64(i)),
			mobility.WithLogger(logger.With("agent", a.AgentID)))
		if err != nil {
			return nil, fmt.Errorf("creating agent %q: %w", a.AgentID, err)
		}
		agents = append(agents, agent.NewSimAgent(a, w))
	}

	return &Simulation{
		meta:     meta,
		runTime:  seconds(meta.RunTime),
		timeStep: seconds(meta.TimeStep),
		traceID:  cfg.TraceFile,
		source:   reg,
		agents:   agents,
		logger:   logger,
	}, nil
}

// Run executes the full simulation and returns the log.
func (s *Simulation) Run(ctx context.Context) (SimulationLog, error) {
	if _, err := s.source.GetFile(ctx, s.traceID); err != nil {
		return SimulationLog{}, fmt.Errorf("loading trace: %w", err)
	}
	// Held for the whole run; an invalidation mid-run does not reset it.
	l, err := s.source.Ledger(s.traceID)
	if err != nil {
		return SimulationLog{}, err
	}
	s.logger.Info("simulation started",
		"simulation_id", s.meta.SimulationID,
		"trace_file", s.traceID,
		"agents", len(s.agents),
		"run_time", s.runTime,
		"time_step", s.timeStep,
	)

	log := SimulationLog{Meta: s.meta}
	for s.curTime <= s.runTime {
		if err := ctx.Err(); err != nil {
			return SimulationLog{}, err
		}
		row, err := s.step(ctx)
		if err != nil {
			return SimulationLog{}, fmt.Errorf("at t=%v: %w", s.curTime, err)
		}
		log.Output = append(log.Output, row)
		s.curTime += s.timeStep
	}

	if l.Total() > 0 {
		log.Visits = l.Counts()
	}
	s.logger.Info("simulation finished",
		"simulation_id", s.meta.SimulationID,
		"rows", len(log.Output),
		"visits", l.Total(),
	)
	return log, nil
}

// step advances every agent to the current time and returns the resulting log row.
func (s *Simulation) step(ctx context.Context) (SimulationLogRow, error) {
	for _, a := range s.agents {
		if err := a.Step(ctx, s.curTime); err != nil {
			return SimulationLogRow{}, err
		}
	}
	logs := make([]agent.AgentLog, len(s.agents))
	for i, a := range s.agents {
		logs[i] = a.GetLog()
	}
	return SimulationLogRow{Timestamp: s.curTime.Seconds(), AgentLogs: logs}, nil
}

// Simulate runs input against a fresh registry. A non-empty TraceData is
// served in place of the file named by Mobility.TraceFile.
func Simulate(ctx context.Context, input SimulationInput, logger *slog.Logger) (SimulationLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if input.TraceData != "" && input.Mobility.TraceFile == "" {
		input.Mobility.TraceFile = "inline"
	}
	opts := []tracecache.Option{tracecache.WithLogger(logger)}
	if data := input.TraceData; data != "" {
		opts = append(opts, tracecache.WithOpener(func(string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(data)), nil
		}))
	}
	reg, err := tracecache.New(opts...)
	if err != nil {
		return SimulationLog{}, err
	}
	defer reg.Close()

	sim, err := NewSimulation(input, reg, logger)
	if err != nil {
		return SimulationLog{}, err
	}
	return sim.Run(ctx)
}

// RunConfig runs the simulation described by a validated run configuration.
func RunConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (SimulationLog, error) {
	input := SimulationInput{
		Meta: SimulationMeta{
			RunTime:  cfg.Simulation.RunTime.Seconds(),
			TimeStep: cfg.Simulation.TimeStep.Seconds(),
		},
		Mobility:  cfg.Mobility,
		AgentList: agent.Numbered(cfg.Simulation.Agents),
		Seed:      cfg.Simulation.Seed,
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []tracecache.Option{tracecache.WithLogger(logger)}
	if cfg.Mobility.WatchTrace {
		opts = append(opts, tracecache.WithWatch())
	}
	reg, err := tracecache.New(opts...)
	if err != nil {
		return SimulationLog{}, err
	}
	defer reg.Close()

	sim, err := NewSimulation(input, reg, logger)
	if err != nil {
		return SimulationLog{}, err
	}
	return sim.Run(ctx)
}

// RunJSON is the primary entry point for the CLI, WASM and HTTP targets.
// It accepts a JSON-encoded SimulationInput, runs the simulation, and returns
// a JSON-encoded SimulationLog. Diagnostics are discarded.
func RunJSON(jsonInput string) (string, error) {
	var input SimulationInput
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}

	simLog, err := Simulate(context.Background(), input, logging.Discard())
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
