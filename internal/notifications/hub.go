// Package notifications fans feed events out to websocket listeners.
package notifications

import (
	"context"
	"errors"
	"sync"

	"feedline/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per authenticated user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull  = errors.New("server connection limit reached")
	ErrUserLimit   = errors.New("user connection limit reached")
	ErrHubShutdown = errors.New("hub is shutting down")
)

// Hub maps userID -> connected Clients. Anonymous listeners share userID 0.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
	logger     *observability.WSLogger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[uint]map[*Client]struct{}),
		logger: observability.NewWSLogger("feed"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "feed hub" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubShutdown
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if userID != 0 && len(m) >= maxConnsPerUser {
		return nil, ErrUserLimit
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	h.logger.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient removes client and closes its send channel. Safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
	h.totalConns--
	close(client.Send)
	observability.WebSocketConnectionsTotal.Dec()
	h.logger.LogDisconnect(context.Background(), client.UserID, "unregistered")
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, clients := range h.conns {
		for c := range clients {
			if c.TrySend(message) {
				delivered++
			}
		}
	}
	return delivered
}

// StartWiring forwards every message on the feed channel to all listeners.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartFeedSubscriber(ctx, func(payload string) {
		h.BroadcastAll([]byte(payload))
	})
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for userID, userConns := range h.conns {
		for client := range userConns {
			if client.Conn != nil {
				if err := client.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
					h.logger.LogError(ctx, userID, err, "close_message")
				}
				_ = client.Conn.Close()
			}
			close(client.Send)
			observability.WebSocketConnectionsTotal.Dec()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.logger.LogLifecycle(ctx, "shutdown", nil)
	return nil
}
