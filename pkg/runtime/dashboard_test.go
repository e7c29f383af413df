// scry/pkg/runtime/dashboard_test.go

package runtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDashboard(t *testing.T) {
	stats := NewStats()
	dashboard := NewDashboard(stats, 8090, 5*time.Second)

	assert.NotNil(t, dashboard)
	assert.Equal(t, stats, dashboard.stats)
	assert.Equal(t, 8090, dashboard.port)
	assert.Equal(t, 5*time.Second, dashboard.updateInterval)
	assert.NotNil(t, dashboard.clients)
}

func TestHandleHealth(t *testing.T) {
	dashboard := NewDashboard(NewStats(), 8090, time.Second)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	dashboard.handleHealth(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Server is running")
}

func TestHandleStats(t *testing.T) {
	stats := NewStats()
	stats.begin("run-123")
	stats.ruleEvaluated()
	stats.ruleEvaluated()
	stats.matchFound()
	stats.finish()

	dashboard := NewDashboard(stats, 8090, time.Second)

	req := httptest.NewRequest("GET", "/stats", nil)
	rr := httptest.NewRecorder()
	dashboard.handleStats(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var snap StatsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, "run-123", snap.RunID)
	assert.Equal(t, int64(2), snap.RulesEvaluated)
	assert.Equal(t, int64(1), snap.MatchesFound)
	assert.False(t, snap.Running)
}

func TestWebSocketRegistersClients(t *testing.T) {
	dashboard := NewDashboard(NewStats(), 8090, time.Second)

	server := httptest.NewServer(http.HandlerFunc(dashboard.handleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		dashboard.clientsMutex.Lock()
		defer dashboard.clientsMutex.Unlock()
		return len(dashboard.clients) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		dashboard.clientsMutex.Lock()
		defer dashboard.clientsMutex.Unlock()
		return len(dashboard.clients) == 0
	}, time.Second, 10*time.Millisecond)
}
