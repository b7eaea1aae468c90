package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/junction-walk/internal/agent"
	"github.com/cxd309/junction-walk/internal/config"
	"github.com/cxd309/junction-walk/internal/engine"
	"github.com/cxd309/junction-walk/internal/logging"
	"github.com/cxd309/junction-walk/internal/tracecache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const line = "0,0,0,3\n0,3,0,0\n"

func newServer(t *testing.T, cfg config.ServerConfig) *Server {
	t.Helper()
	reg, err := tracecache.New(tracecache.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return New(reg, cfg, WithLogger(logging.Discard()))
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func simulation(trace string) engine.SimulationInput {
	return engine.SimulationInput{
		Meta:      engine.SimulationMeta{SimulationID: "http", RunTime: 3, TimeStep: 1},
		Mobility:  config.MobilityConfig{TraceFile: "line.csv", Speed: 1},
		TraceData: trace,
		AgentList: []agent.Agent{{AgentID: "a"}},
	}
}

func TestHealth(t *testing.T) {
	w := do(t, newServer(t, config.ServerConfig{}), http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSimulate_InlineTrace(t *testing.T) {
	w := do(t, newServer(t, config.ServerConfig{}), http.MethodPost, "/v1/simulate", simulation(line))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var log engine.SimulationLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &log))
	assert.Equal(t, "http", log.Meta.SimulationID)
	assert.Len(t, log.Output, 4)
	assert.Equal(t, []int{1, 1}, log.Visits)
}

func TestSimulate_LedgerIsPerRequest(t *testing.T) {
	s := newServer(t, config.ServerConfig{})
	for range 2 {
		w := do(t, s, http.MethodPost, "/v1/simulate", simulation(line))
		require.Equal(t, http.StatusOK, w.Code)
		var log engine.SimulationLog
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &log))
		assert.Equal(t, []int{1, 1}, log.Visits)
	}
}

func TestSimulate_FileTraceNeedsTraceDir(t *testing.T) {
	w := do(t, newServer(t, config.ServerConfig{}), http.MethodPost, "/v1/simulate", simulation(""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "trace_data")
}

func TestSimulate_FileTraceFromTraceDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "line.csv"), []byte(line), 0o644))
	s := newServer(t, config.ServerConfig{TraceDir: dir})

	w := do(t, s, http.MethodPost, "/v1/simulate", simulation(""))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	missing := simulation("")
	missing.Mobility.TraceFile = "nope.csv"
	w = do(t, s, http.MethodPost, "/v1/simulate", missing)
	assert.Equal(t, http.StatusNotFound, w.Code)

	escape := simulation("")
	escape.Mobility.TraceFile = "../line.csv"
	w = do(t, s, http.MethodPost, "/v1/simulate", escape)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimulate_BadInput(t *testing.T) {
	s := newServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := simulation(line)
	bad.Mobility.Speed = -1
	w = do(t, s, http.MethodPost, "/v1/simulate", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	empty := simulation("\n")
	w = do(t, s, http.MethodPost, "/v1/simulate", empty)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGraphs_ReportsAndCaches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "line.csv"), []byte(line+"9,9,8,8\n"), 0o644))
	s := newServer(t, config.ServerConfig{TraceDir: dir})

	w := do(t, s, http.MethodGet, "/v1/graphs?trace=line.csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep GraphReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "line.csv", rep.Trace)
	assert.Equal(t, 3, rep.Report.Junctions)
	assert.Equal(t, 2, rep.Report.Edges)
	assert.Equal(t, 1, rep.Report.DroppedEdges)
	assert.Equal(t, []int{2}, rep.Report.DeadEnds)
	assert.Equal(t, 2, rep.Report.Reachable)
	assert.Equal(t, int64(1), rep.Cache.Parses)

	w = do(t, s, http.MethodGet, "/v1/graphs?trace=line.csv", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, int64(1), rep.Cache.Parses)
	assert.Equal(t, int64(1), rep.Cache.Hits)
}

func TestGraphs_Errors(t *testing.T) {
	s := newServer(t, config.ServerConfig{TraceDir: t.TempDir()})
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/graphs", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/graphs?trace=absent.csv", nil).Code)
}

func TestCORS(t *testing.T) {
	s := newServer(t, config.ServerConfig{CORSOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
