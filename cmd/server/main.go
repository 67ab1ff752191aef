package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwire/internal/auth"
	"github.com/pscheid92/chatwire/internal/broadcast"
	"github.com/pscheid92/chatwire/internal/chat"
	"github.com/pscheid92/chatwire/internal/config"
	"github.com/pscheid92/chatwire/internal/database"
	"github.com/pscheid92/chatwire/internal/logging"
	"github.com/pscheid92/chatwire/internal/metrics"
	"github.com/pscheid92/chatwire/internal/redis"
	"github.com/pscheid92/chatwire/internal/server"
	"github.com/pscheid92/chatwire/internal/version"
	"github.com/pscheid92/chatwire/internal/websocket"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// consumerName identifies this instance in the presence consumer group, so
// pending entries of a crashed instance can be told apart and reclaimed.
func consumerName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "chatwire"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

func runGracefulShutdown(srv *server.Server, consumer *chat.PresenceConsumer, cancelConsumer context.CancelFunc, hub *websocket.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelConsumer()
		consumer.Stop()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	registry := redis.NewConnectionRegistry(redisClient)
	queue := redis.NewPresenceQueue(redisClient, consumerName())
	if err := queue.EnsureGroup(context.Background()); err != nil {
		slog.Error("Failed to set up presence consumer group", "error", err)
		os.Exit(1)
	}

	messageRepo := database.NewMessageRepo(pool)
	channelRepo := database.NewChannelRepo(pool)
	userDirectory := database.NewUserDirectory(pool)

	hub := websocket.NewHub(clock)
	broadcaster := broadcast.New(registry, hub, cfg.BroadcastMaxInFlight, clock)

	messageSvc := chat.NewMessageService(messageRepo, broadcaster, clock)
	presenceSvc := chat.NewPresenceService(registry, queue, userDirectory, clock)

	consumer := chat.NewPresenceConsumer(queue, broadcaster, int64(cfg.PresenceConsumerBatchSize), cfg.PresenceConsumerBlock)
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	go consumer.Start(consumerCtx)

	verifier := auth.NewVerifier([]byte(cfg.TokenSigningKey), cfg.TokenTTL, clock)

	srv := server.New(cfg, server.Deps{
		Hub:      hub,
		Messages: messageSvc,
		Presence: presenceSvc,
		Channels: channelRepo,
		History:  messageRepo,
		Verifier: verifier,
		Redis:    redisClient,
		Pool:     pool,
	})

	done := runGracefulShutdown(srv, consumer, cancelConsumer, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
