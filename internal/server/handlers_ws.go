package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // token auth gates the endpoint, not the origin
	},
}

// envelope is the inbound frame format. Unknown actions are ignored so old
// servers tolerate newer clients.
type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	principal, err := s.authenticate(c)
	if err != nil {
		metrics.WebSocketConnectionsRejected.WithLabelValues("unauthorized").Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	ip := c.RealIP()
	allowed, reason := s.limits.Acquire(ip)
	if !allowed {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "connection limit reached")
	}
	metrics.WebSocketUniqueIPs.Set(float64(s.limits.PerIP().UniqueIPs()))

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.limits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Warn("websocket upgrade failed", "error", err, "ip", ip)
		return nil
	}

	connectionID := uuid.NewString()
	ctx := c.Request().Context()

	if err := s.hub.Register(connectionID, conn); err != nil {
		s.limits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Error("failed to register connection", "connection_id", connectionID, "error", err)
		_ = conn.Close()
		return nil
	}

	if err := s.presence.OnConnect(ctx, domain.Connection{ConnectionID: connectionID, UserID: principal.Username}); err != nil {
		slog.ErrorContext(ctx, "connect bookkeeping failed",
			"connection_id", connectionID,
			"user_id", principal.Username,
			"error", err,
		)
		s.hub.Unregister(connectionID)
		s.limits.Release(ip)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return nil
	}

	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()
	openedAt := time.Now()

	s.readPump(ctx, conn, connectionID, principal)

	// Disconnect bookkeeping uses a fresh context: the request context is
	// already dead once the client goes away.
	s.hub.Unregister(connectionID)
	if err := s.presence.OnDisconnect(context.WithoutCancel(ctx), connectionID); err != nil {
		slog.Error("disconnect bookkeeping failed",
			"connection_id", connectionID,
			"user_id", principal.Username,
			"error", err,
		)
	}

	s.limits.Release(ip)
	metrics.WebSocketUniqueIPs.Set(float64(s.limits.PerIP().UniqueIPs()))
	metrics.WebSocketConnectionDuration.Observe(time.Since(openedAt).Seconds())
	return nil
}

// readPump consumes frames until the connection dies. Malformed payloads
// get an error frame back; everything else that fails is logged and the
// connection lives on.
func (s *Server) readPump(ctx context.Context, conn *ws.Conn, connectionID string, principal domain.Principal) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(ctx, connectionID, "malformed frame")
			continue
		}

		switch env.Action {
		case "payload":
			err := s.messages.Receive(ctx, principal.Username, env.Data)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrMalformedPayload):
				s.sendError(ctx, connectionID, "malformed payload")
			default:
				slog.ErrorContext(ctx, "failed to handle payload",
					"connection_id", connectionID,
					"user_id", principal.Username,
					"error", err,
				)
				s.sendError(ctx, connectionID, "message not accepted")
			}
		default:
			slog.DebugContext(ctx, "ignoring unknown action",
				"action", env.Action,
				"connection_id", connectionID,
			)
		}
	}
}

// sendError pushes an error frame through the hub so the per-connection
// writer stays the only goroutine writing to the socket.
func (s *Server) sendError(ctx context.Context, connectionID, message string) {
	frame, _ := json.Marshal(map[string]string{"error": message})
	if err := s.hub.Post(ctx, connectionID, frame); err != nil {
		slog.DebugContext(ctx, "failed to send error frame",
			"connection_id", connectionID,
			"error", err,
		)
	}
}
