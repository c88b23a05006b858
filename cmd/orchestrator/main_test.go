package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/service_orchestrator/internal/admin"
	"github.com/R3E-Network/service_orchestrator/internal/engine/manager"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
)

func TestStatus_PrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]manager.ServiceStatus{
			{ID: "eventlog", Status: state.StatusRunning, AutoStart: true},
			{ID: "heartbeat", Status: state.StatusRunning, Dependencies: []string{"eventlog"}},
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, status(&out, newClient(srv.URL, time.Second), time.Second))
	assert.Contains(t, out.String(), "SERVICE")
	assert.Contains(t, out.String(), "heartbeat")
	assert.Contains(t, out.String(), "[eventlog]")
}

func TestScatter_PostsArgs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events/reload", r.URL.Path)

		var req admin.ScatterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []any{"a", "b"}, req.Args)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(admin.ScatterResponse{Event: "reload", TraceID: "t-1"})
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, scatter(&out, newClient(srv.URL, time.Second), time.Second, []string{"reload", "a", "b"}))
	assert.Equal(t, "scattered reload (trace t-1)\n", out.String())
}

func TestScatter_RequiresEvent(t *testing.T) {
	err := scatter(&bytes.Buffer{}, newClient("http://127.0.0.1:1", time.Second), time.Second, nil)
	assert.Error(t, err)
}
