// Package websocket owns the live connections of this instance. The Hub is a
// single-goroutine actor keyed by connection ID; it stands in for a managed
// websocket gateway and is the process-local delivery target behind the
// ConnectionPusher contract.
package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	connectionID string
	conn         *websocket.Conn
	errCh        chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	connectionID string
	reason       string
}

func (cmdUnregister) hubCmd() {}

type cmdPost struct {
	connectionID string
	data         []byte
	errCh        chan error
}

func (cmdPost) hubCmd() {}

type cmdCount struct {
	replyCh chan int
}

func (cmdCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Hub ---

type Hub struct {
	cmdCh   chan hubCmd
	clients map[string]*clientWriter
	clock   clockwork.Clock
}

var _ domain.ConnectionPusher = (*Hub)(nil)

func NewHub(clock clockwork.Clock) *Hub {
	hub := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[string]*clientWriter),
		clock:   clock,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.connectionID, c.reason)
		case cmdPost:
			c.errCh <- h.handlePost(c)
		case cmdCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if _, exists := h.clients[c.connectionID]; exists {
		c.errCh <- fmt.Errorf("connection %s already registered", c.connectionID)
		return
	}

	h.clients[c.connectionID] = newClientWriter(c.conn, h.clock)
	metrics.WebSocketConnectionsCurrent.Set(float64(len(h.clients)))
	slog.Debug("client registered", "connection_id", c.connectionID, "total", len(h.clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(connectionID, reason string) {
	cw, exists := h.clients[connectionID]
	if !exists {
		return
	}

	if reason != "" {
		cw.stopGraceful(reason)
	} else {
		cw.stop()
	}
	delete(h.clients, connectionID)
	metrics.WebSocketConnectionsCurrent.Set(float64(len(h.clients)))
	slog.Debug("client unregistered", "connection_id", connectionID, "remaining", len(h.clients))
}

func (h *Hub) handlePost(c cmdPost) error {
	cw, exists := h.clients[c.connectionID]
	if !exists {
		return fmt.Errorf("connection %s: %w", c.connectionID, domain.ErrConnectionGone)
	}

	select {
	case cw.sendChannel <- c.data:
		return nil
	default:
		// Send buffer full: the client cannot keep up. Evict it and
		// report it gone so the registry record gets cleaned too.
		metrics.WebSocketSlowClientsEvicted.Inc()
		slog.Warn("evicting slow client", "connection_id", c.connectionID)
		h.handleUnregister(c.connectionID, "too slow")
		return fmt.Errorf("connection %s evicted (send buffer full): %w", c.connectionID, domain.ErrConnectionGone)
	}
}

func (h *Hub) handleStop() {
	for connectionID, cw := range h.clients {
		cw.stopGraceful("server shutting down")
		delete(h.clients, connectionID)
	}
	metrics.WebSocketConnectionsCurrent.Set(0)
}

// --- Public API ---

// Register adds a connection under the given ID and starts its writer.
func (h *Hub) Register(connectionID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{connectionID: connectionID, conn: conn, errCh: errCh}
	return <-errCh
}

// Unregister stops the connection's writer and forgets it. Unknown IDs are
// ignored so disconnect paths can race with slow-client eviction.
func (h *Hub) Unregister(connectionID string) {
	h.cmdCh <- cmdUnregister{connectionID: connectionID}
}

// Post delivers data to one connection. Unknown or evicted connections yield
// domain.ErrConnectionGone.
func (h *Hub) Post(ctx context.Context, connectionID string, data []byte) error {
	errCh := make(chan error, 1)
	select {
	case h.cmdCh <- cmdPost{connectionID: connectionID, data: data, errCh: errCh}:
	case <-ctx.Done():
		return fmt.Errorf("post to %s: %w", connectionID, ctx.Err())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("post to %s: %w", connectionID, ctx.Err())
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdCount{replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection with a close frame and stops the actor.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}
