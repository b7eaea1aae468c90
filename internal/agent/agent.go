// Package agent defines the simulated pedestrians driven by the engine and
// the SimAgent state machine that wraps a mobility walker.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/cxd309/junction-walk/internal/mobility"
)

// AgentID is a unique string identifier for an agent.
type AgentID = string

// AgentState describes what an agent is doing.
type AgentState string

const (
	StateWaiting    AgentState = "waiting"
	StateWalking    AgentState = "walking"
	StateStationary AgentState = "stationary"
)

// Agent is the static definition of one pedestrian.
type Agent struct {
	AgentID AgentID `json:"agent_id"`
	// DepartureDelay is the number of simulation-seconds the agent stays off
	// the graph before it is placed at junction 0. Zero means immediate.
	DepartureDelay float64 `json:"departure_delay,omitempty"` // seconds
}

// Departure returns DepartureDelay as a duration.
func (a Agent) Departure() time.Duration {
	return time.Duration(a.DepartureDelay * float64(time.Second))
}

// Numbered returns n agents named agent-1 .. agent-n departing at once.
func Numbered(n int) []Agent {
	out := make([]Agent, n)
	for i := range out {
		out[i] = Agent{AgentID: fmt.Sprintf("agent-%d", i+1)}
	}
	return out
}

// SimAgent is an Agent enriched with live simulation state.
type SimAgent struct {
	Agent
	State  AgentState
	walker *mobility.Walker
}

// NewSimAgent binds a definition to the walker that moves it.
func NewSimAgent(a Agent, w *mobility.Walker) *SimAgent {
	return &SimAgent{Agent: a, State: StateWaiting, walker: w}
}

// Step brings the agent to simulated time now. An agent past its departure
// time is initialized on the first step that reaches it.
func (s *SimAgent) Step(ctx context.Context, now time.Duration) error {
	switch {
	case now < s.Departure():
		return nil
	case s.State == StateWaiting:
		if err := s.walker.Initialize(ctx, now); err != nil {
			return fmt.Errorf("agent %q initialize: %w", s.AgentID, err)
		}
	default:
		if _, err := s.walker.Advance(now); err != nil {
			return fmt.Errorf("agent %q advance: %w", s.AgentID, err)
		}
	}
	s.State = StateWalking
	if s.walker.State().Stationary {
		s.State = StateStationary
	}
	return nil
}

// AgentLog is a point-in-time snapshot of a SimAgent. Position is nil and
// the junction indices are -1 while the agent is waiting.
type AgentLog struct {
	AgentID    AgentID    `json:"agent_id"`
	State      AgentState `json:"state"`
	Position   *orb.Point `json:"position"`
	Velocity   orb.Point  `json:"velocity"`
	Current    int        `json:"current"`
	Next       int        `json:"next"`
	NextChange float64    `json:"next_change"` // seconds, -1 when none
}

// GetLog returns a point-in-time snapshot of the agent.
func (s *SimAgent) GetLog() AgentLog {
	if s.State == StateWaiting {
		return AgentLog{AgentID: s.AgentID, State: s.State, Current: -1, Next: -1, NextChange: -1}
	}
	st := s.walker.State()
	pos := st.Position
	log := AgentLog{
		AgentID:    s.AgentID,
		State:      s.State,
		Position:   &pos,
		Velocity:   s.walker.Velocity(),
		Current:    st.Current,
		Next:       st.Next,
		NextChange: -1,
	}
	if st.NextChange != mobility.NoChange {
		log.NextChange = st.NextChange.Seconds()
	}
	return log
}
