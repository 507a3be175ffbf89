package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/ernie/hostlog/internal/bus"
	"github.com/ernie/hostlog/internal/collector"
	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/storage"
)

var errNoLog = errors.New("no log configured")

// LogStreamManager connects websocket clients to the live lines the
// tailers publish on the bus. The tailer for a server runs while it has at
// least one client.
type LogStreamManager struct {
	store *storage.Store
	bus   *bus.Bus
	tails *collector.TailManager

	mu      sync.RWMutex
	clients map[int64]map[*LogStreamClient]bool // serverID -> set of clients
	subs    map[int64]*nats.Subscription
}

// NewLogStreamManager creates a new log stream manager
func NewLogStreamManager(store *storage.Store, b *bus.Bus, tails *collector.TailManager) *LogStreamManager {
	return &LogStreamManager{
		store:   store,
		bus:     b,
		tails:   tails,
		clients: make(map[int64]map[*LogStreamClient]bool),
		subs:    make(map[int64]*nats.Subscription),
	}
}

// Subscribe adds a client to log streaming for a server
func (m *LogStreamManager) Subscribe(ctx context.Context, client *LogStreamClient, serverID int64) error {
	server, err := m.store.GetServerByID(ctx, serverID)
	if err != nil {
		return err
	}
	if server.LogPath == "" {
		return errNoLog
	}

	// acquired outside m.mu, starting a tailer does file I/O
	if err := m.tails.Acquire(serverID, server.LogPath); err != nil {
		return err
	}

	m.mu.Lock()
	if m.clients[serverID] == nil {
		sub, err := m.bus.Subscribe(serverID, func(data []byte) {
			m.fanOut(serverID, data)
		})
		if err != nil {
			m.mu.Unlock()
			m.tails.Release(serverID)
			return fmt.Errorf("subscribing to live lines: %w", err)
		}
		m.subs[serverID] = sub
		m.clients[serverID] = make(map[*LogStreamClient]bool)
	}

	client.serverID = serverID
	m.clients[serverID][client] = true
	log.Printf("Log stream client subscribed to server %d (%d total)", serverID, len(m.clients[serverID]))
	m.mu.Unlock()
	return nil
}

// Unsubscribe removes a client from log streaming
func (m *LogStreamManager) Unsubscribe(client *LogStreamClient) {
	m.mu.Lock()
	serverID := client.serverID
	clients, ok := m.clients[serverID]
	if !ok || !clients[client] {
		m.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	log.Printf("Log stream client unsubscribed from server %d (%d remaining)", serverID, len(clients))
	if len(clients) == 0 {
		m.dropServerLocked(serverID)
	}
	m.mu.Unlock()

	m.tails.Release(serverID)
}

func (m *LogStreamManager) dropServerLocked(serverID int64) {
	if sub, ok := m.subs[serverID]; ok {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("Error unsubscribing from live lines for server %d: %v", serverID, err)
		}
		delete(m.subs, serverID)
	}
	delete(m.clients, serverID)
}

// Clients returns the number of websocket clients watching serverID
func (m *LogStreamManager) Clients(serverID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[serverID])
}

// Tailing reports whether a tailer is publishing serverID's log
func (m *LogStreamManager) Tailing(serverID int64) bool {
	return m.tails.Subscribers(serverID) > 0
}

// fanOut forwards one bus message to every client of serverID
func (m *LogStreamManager) fanOut(serverID int64, data []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for client := range m.clients[serverID] {
		select {
		case client.send <- data:
		default:
			// Client buffer full, drop
		}
	}
}

// handleLogWebSocket handles WebSocket connections for log streaming
func (r *Router) handleLogWebSocket(w http.ResponseWriter, req *http.Request) {
	// Validate auth from query parameter (WebSocket can't send headers on upgrade)
	token := req.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "token required")
		return
	}
	claims, err := r.auth.ValidateToken(token)
	if err != nil || claims == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if !claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	serverID, err := strconv.ParseInt(req.URL.Query().Get("server_id"), 10, 64)
	if err != nil || serverID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid server_id")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("Log WebSocket upgrade error: %v", err)
		return
	}

	client := &LogStreamClient{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteAddr: getClientIP(req),
		manager:    r.logStream,
	}

	if err := r.logStream.Subscribe(req.Context(), client, serverID); err != nil {
		log.Printf("Log subscription error for server %d: %v", serverID, err)
		msg := domain.LiveMessage{Type: domain.MessageError, ServerID: serverID, Error: "failed to subscribe to logs"}
		if errors.Is(err, errNoLog) {
			msg.Error = errNoLog.Error()
		}
		data, _ := json.Marshal(msg)
		conn.WriteMessage(websocket.TextMessage, data)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
