// scry/pkg/runtime/dashboard.go

package runtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rgehrsitz/scry/pkg/logging"
)

// Dashboard streams matching-pass statistics to websocket clients.
type Dashboard struct {
	stats          *Stats
	port           int
	clients        map[*websocket.Conn]bool
	clientsMutex   sync.Mutex
	updateInterval time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now. In production, this should be more restrictive.
	},
}

func NewDashboard(stats *Stats, port int, updateInterval time.Duration) *Dashboard {
	return &Dashboard{
		stats:          stats,
		port:           port,
		clients:        make(map[*websocket.Conn]bool),
		updateInterval: updateInterval,
	}
}

func (d *Dashboard) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/stats", d.handleStats)
	mux.HandleFunc("/events", d.handleWebSocket)

	go d.broadcastUpdates()

	addr := fmt.Sprintf(":%d", d.port)
	logging.Logger.Info().Str("addr", addr).Msg("Dashboard starting")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Logger.Error().Err(err).Msg("Dashboard error")
	}
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Server is running")
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.stats.Snapshot()); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to encode stats")
	}
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Error().Err(err).Msg("Error upgrading to WebSocket")
		return
	}
	defer conn.Close()

	logging.Logger.Debug().Str("client", conn.RemoteAddr().String()).Msg("Client connected")

	d.clientsMutex.Lock()
	d.clients[conn] = true
	d.clientsMutex.Unlock()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}

	d.clientsMutex.Lock()
	delete(d.clients, conn)
	d.clientsMutex.Unlock()

	logging.Logger.Debug().Str("client", conn.RemoteAddr().String()).Msg("Client disconnected")
}

func (d *Dashboard) broadcastUpdates() {
	ticker := time.NewTicker(d.updateInterval)
	defer ticker.Stop()

	for range ticker.C {
		message, err := json.Marshal(d.stats.Snapshot())
		if err != nil {
			logging.Logger.Error().Err(err).Msg("Error marshaling stats")
			continue
		}

		d.clientsMutex.Lock()
		for client := range d.clients {
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				delete(d.clients, client)
			}
		}
		d.clientsMutex.Unlock()
	}
}
