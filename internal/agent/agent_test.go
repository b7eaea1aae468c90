package agent

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/junction-walk/internal/kinematics"
	"github.com/cxd309/junction-walk/internal/logging"
	"github.com/cxd309/junction-walk/internal/mobility"
	"github.com/cxd309/junction-walk/internal/tracecache"
)

// Two junctions three plane units apart.
const line = "0,0,0,3\n0,3,0,0\n"

func newAgent(t *testing.T, a Agent, trace string) *SimAgent {
	t.Helper()
	reg, err := tracecache.New(
		tracecache.WithLogger(logging.Discard()),
		tracecache.WithOpener(func(string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(trace)), nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	model, err := kinematics.NewConstantSpeed(1)
	require.NoError(t, err)
	w, err := mobility.NewWalker(reg, mobility.Config{TraceFile: "line", Model: model},
		mobility.NewRand(1, 0), mobility.WithLogger(logging.Discard()))
	require.NoError(t, err)
	return NewSimAgent(a, w)
}

func TestNumbered(t *testing.T) {
	agents := Numbered(3)
	require.Len(t, agents, 3)
	assert.Equal(t, "agent-1", agents[0].AgentID)
	assert.Equal(t, "agent-3", agents[2].AgentID)
	assert.Zero(t, agents[1].DepartureDelay)
}

func TestSimAgent_WaitsForDeparture(t *testing.T) {
	s := newAgent(t, Agent{AgentID: "a", DepartureDelay: 2}, line)
	ctx := context.Background()

	require.NoError(t, s.Step(ctx, time.Second))
	assert.Equal(t, StateWaiting, s.State)
	log := s.GetLog()
	assert.Nil(t, log.Position)
	assert.Equal(t, -1, log.Current)
	assert.Equal(t, -1.0, log.NextChange)

	require.NoError(t, s.Step(ctx, 2*time.Second))
	assert.Equal(t, StateWalking, s.State)
	log = s.GetLog()
	require.NotNil(t, log.Position)
	assert.Equal(t, orb.Point{0, 0}, *log.Position)
	assert.Equal(t, 0, log.Current)
	assert.Equal(t, 1, log.Next)
	assert.Equal(t, 5.0, log.NextChange)
	assert.Equal(t, orb.Point{1, 0}, log.Velocity)
}

func TestSimAgent_WalksAndArrives(t *testing.T) {
	s := newAgent(t, Agent{AgentID: "a"}, line)
	ctx := context.Background()

	for _, sec := range []int{0, 1, 2, 3} {
		require.NoError(t, s.Step(ctx, time.Duration(sec)*time.Second))
	}
	log := s.GetLog()
	assert.Equal(t, orb.Point{3, 0}, *log.Position)
	assert.Equal(t, 1, log.Current)
	assert.Equal(t, 0, log.Next)
	assert.Equal(t, 6.0, log.NextChange)
}

func TestSimAgent_Stationary(t *testing.T) {
	s := newAgent(t, Agent{AgentID: "a"}, "0,0\n")
	require.NoError(t, s.Step(context.Background(), 0))
	assert.Equal(t, StateStationary, s.State)
	assert.Equal(t, -1.0, s.GetLog().NextChange)
}

func TestSimAgent_InitializeErrorNamesAgent(t *testing.T) {
	s := newAgent(t, Agent{AgentID: "lost"}, "")
	err := s.Step(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, mobility.ErrEmptyGraph)
	assert.Contains(t, err.Error(), `"lost"`)
	assert.Equal(t, StateWaiting, s.State)
}
