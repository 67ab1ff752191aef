package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Client bootstrap endpoints (no auth: needed before login)
	s.echo.GET("/api/config", s.handleClientConfig)
	s.echo.POST("/api/token", s.handleIssueToken)

	// REST API (bearer token required)
	api := s.echo.Group("/api", s.requireAuth)
	api.GET("/users", s.handleListUsers)
	api.GET("/channels", s.handleListChannels)
	api.POST("/channels", s.handleCreateChannel)
	api.GET("/channels/:id/messages", s.handleChannelHistory)

	// WebSocket endpoint (token checked before upgrade)
	s.echo.GET("/ws", s.handleWebSocket)
}
