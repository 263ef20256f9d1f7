package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_HubStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(t, "127.0.0.1:0")
	router := InitRouter(a.cfg, a.hub, a.relay, a.reg, a.log)

	sub, err := a.hub.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hub/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["hub_running"])
	assert.EqualValues(t, 1, body["subscribers"])
	assert.EqualValues(t, 0, body["sessions"])
	assert.EqualValues(t, 0, body["pending_calculations"])
}

func TestRouter_MetricsAfterPublish(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(t, "127.0.0.1:0")
	router := InitRouter(a.cfg, a.hub, a.relay, a.reg, a.log)

	sub, err := a.hub.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages",
		strings.NewReader(`{"message":"hello"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_messages_published_total 1")
	assert.Contains(t, rec.Body.String(), "relay_sessions_active 0")

	// Stopped hub shows up in the status.
	require.NoError(t, a.hub.Stop(context.Background()))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hub/status", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["hub_running"])
}
