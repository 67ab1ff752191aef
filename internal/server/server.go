package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwire/internal/auth"
	"github.com/pscheid92/chatwire/internal/chat"
	"github.com/pscheid92/chatwire/internal/config"
	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/errors"
	"github.com/pscheid92/chatwire/internal/websocket"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Hub      *websocket.Hub
	Messages *chat.MessageService
	Presence *chat.PresenceService
	Channels domain.ChannelRepository
	History  domain.MessageRepository
	Verifier *auth.Verifier
	Redis    *goredis.Client
	Pool     *pgxpool.Pool
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	hub       *websocket.Hub
	messages  *chat.MessageService
	presence  *chat.PresenceService
	channels  domain.ChannelRepository
	history   domain.MessageRepository
	verifier  *auth.Verifier
	limits    *ConnectionLimits
	redis     redisHealthChecker
	pool      postgresHealthChecker
	startTime time.Time
}

func New(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(correlationMiddleware())
	e.Use(middleware.Recover())
	e.Use(httpMetricsMiddleware())
	e.Use(errors.Middleware())

	srv := &Server{
		echo:     e,
		config:   cfg,
		hub:      deps.Hub,
		messages: deps.Messages,
		presence: deps.Presence,
		channels: deps.Channels,
		history:  deps.History,
		verifier: deps.Verifier,
		limits: NewConnectionLimits(
			int64(cfg.MaxWebSocketConnections),
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRatePerIP,
			cfg.ConnectionBurstPerIP,
		),
		redis:     deps.Redis,
		pool:      deps.Pool,
		startTime: time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// httpMetricsMiddleware registers the request metrics collectors once; the
// default registry rejects duplicate registration.
var httpMetrics struct {
	once sync.Once
	mw   echo.MiddlewareFunc
}

func httpMetricsMiddleware() echo.MiddlewareFunc {
	httpMetrics.once.Do(func() {
		httpMetrics.mw = echoprometheus.NewMiddleware("chatwire")
	})
	return httpMetrics.mw
}
