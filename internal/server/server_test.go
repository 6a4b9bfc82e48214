package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamabridge/llamabridge/internal/bridge"
	"github.com/llamabridge/llamabridge/internal/completion"
	"github.com/llamabridge/llamabridge/internal/config"
	"github.com/llamabridge/llamabridge/internal/dedup"
	"github.com/llamabridge/llamabridge/internal/history"
	"github.com/llamabridge/llamabridge/internal/lane"
)

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, []completion.Message) (completion.Reply, error) {
	return completion.Reply{}, nil
}

func (stubCompleter) Endpoints() []completion.Endpoint {
	return []completion.Endpoint{{Name: "primary"}}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := history.NewStore(nil, filepath.Join(t.TempDir(), "history.json"), 10, 4000, time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	b := bridge.New(nil, config.ChatConfig{},
		lane.NewScheduler(nil),
		dedup.NewSuppressor(nil, time.Minute, time.Hour),
		nil, stubCompleter{}, store,
		bridge.NewGate(nil, bridge.GateOpen, nil, ""), nil)
	return NewServer(nil, ":0", b)
}

func TestPing(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestHealthHead(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsBridgeCounters(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats bridge.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.ActiveLanes)
	assert.Equal(t, []string{"primary"}, stats.Endpoints)
}

func TestFlush(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/flush", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
