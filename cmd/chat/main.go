package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/aireply"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/gateway"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/handler"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/health"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/jwt"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/nats"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/presence"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository/postgres"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository/sqlite"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/router"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/snowflake"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/telemetry"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/workerpool"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load(config.GetEnv("CONFIG_PATH", "configs/config.yaml"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}

	// Persistence
	repos, db, closeDB, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("Database ready", "driver", cfg.Database.Driver)

	node, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		logger.Error("Failed to create snowflake node", "error", err)
		os.Exit(1)
	}

	// Presence
	var (
		redisClient *redis.Client
		tracker     presence.Tracker = presence.NewLocal()
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		tracker = presence.NewRedis(redisClient, strconv.FormatInt(cfg.App.NodeID, 10), presence.DefaultTTL)
		logger.Info("Redis presence enabled", "addr", cfg.Redis.Addr())
	}

	manager := gateway.NewManager(tracker, logger)

	// Event bus
	var (
		publisher  event.Publisher = manager
		natsClient *nats.Client
		subscriber *nats.EventSubscriber
		natsConn   *natsgo.Conn
	)
	if cfg.NATS.Enabled {
		natsClient, err = nats.NewClient(cfg.NATS, cfg.App.Name, logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		natsConn = natsClient.Conn()
		publisher = nats.NewEventPublisher(natsClient)
		subscriber = nats.NewEventSubscriber(natsClient, manager)
		if err := subscriber.Start(); err != nil {
			logger.Error("Failed to subscribe to user events", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	// Services
	conversations := service.NewConversationService(repos, service.NewFriendshipGate(repos.Relations), tracker, node)
	notifications := service.NewNotificationService(repos.Notifications, publisher, node)
	dispatchPool := workerpool.New(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, logger)

	replies, stopReplies, err := setupReplies(cfg, conversations, publisher, logger)
	if err != nil {
		logger.Error("Failed to set up automated replies", "error", err)
		os.Exit(1)
	}

	dispatcher := service.NewDispatcherService(conversations, notifications, publisher, replies, dispatchPool, cfg.Dispatch.TaskTimeout)

	// Realtime gateway
	tokens := jwt.NewService(cfg.JWT.SecretKey, cfg.JWT.AccessExpire, cfg.JWT.RefreshExpire)
	gw := gateway.New(gateway.Options{
		Config:         cfg.Gateway,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Manager:        manager,
		Sender:         dispatcher,
		Participants:   conversations,
		Publisher:      publisher,
		Tokens:         tokens,
		Logger:         logger,
	})
	heartbeat := gateway.NewHeartbeatChecker(manager, cfg.Gateway.HeartbeatTimeout, cfg.Gateway.HeartbeatCheckInterval, logger)
	go heartbeat.Start(ctx)

	var wtServer *gateway.WebTransportServer
	if cfg.Gateway.WebTransport.Enabled {
		wtServer = gateway.NewWebTransportServer(cfg.Gateway.WebTransport, gw, logger)
		go func() {
			if err := wtServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("WebTransport server failed", "error", err)
			}
		}()
	}

	// HTTP
	checker := health.NewChecker(cfg.App.Name, db, redisClient, natsConn, manager)
	r := router.SetupRouter(cfg, tokens, router.Handlers{
		Conversations: handler.NewConversationHandler(conversations),
		Messages:      handler.NewMessageHandler(dispatcher),
		WebSocket:     gw.HandleWebSocket,
		Health:        checker,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Chat server started", "addr", srv.Addr, "mode", cfg.App.Mode, "node_id", cfg.App.NodeID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if wtServer != nil {
		wtServer.Shutdown()
	}
	cancel()
	manager.CloseAll(shutdownCtx)

	if err := dispatchPool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Dispatch pool did not drain", "error", err)
	}
	stopReplies(shutdownCtx)

	if subscriber != nil {
		subscriber.Stop()
	}
	if natsClient != nil {
		natsClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	closeDB()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// openDatabase returns the repositories of the configured driver, a pinger
// for health checks and a close func.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*repository.Repositories, health.Pinger, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "":
		pool, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.NewRepositories(pool), pool, pool.Close, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.Repositories(), db, func() { db.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// setupReplies wires the automated reply engine to the scheduler chosen by
// ai.queue. Without credentials every reply is a no-op.
func setupReplies(cfg *config.Config, store aireply.Store, publisher event.Publisher, logger *slog.Logger) (service.ReplyScheduler, func(context.Context), error) {
	noop := func(context.Context) {}
	if !cfg.AI.Enabled() {
		logger.Info("Automated replies disabled, no provider key configured")
		return service.NoopReplyScheduler{}, noop, nil
	}

	catalog, err := aireply.LoadCatalog(cfg.AI.CatalogPath)
	if err != nil {
		return nil, nil, err
	}

	engine := aireply.NewEngine(aireply.Options{
		Store:     store,
		Provider:  aireply.NewAnthropicProvider(cfg.AI),
		Publisher: publisher,
		Catalog:   catalog,
		Policy: aireply.RetryPolicy{
			MaxAttempts:   aireply.DefaultMaxAttempts,
			FallbackDelay: cfg.AI.FallbackDelay,
			MaxDelay:      cfg.AI.MaxDelay,
		},
		HistoryLimit: cfg.AI.HistoryLimit,
		Logger:       logger,
	})

	if cfg.AI.Queue == "asynq" {
		if !cfg.Redis.Enabled {
			return nil, nil, errors.New("ai.queue asynq requires redis")
		}
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		scheduler := aireply.NewQueueScheduler(redisOpt, aireply.DefaultQueue, cfg.AI.TaskTimeout)
		worker := aireply.NewQueueWorker(redisOpt, aireply.DefaultQueue, cfg.AI.Workers, engine, logger)
		if err := worker.Start(); err != nil {
			scheduler.Close()
			return nil, nil, err
		}
		logger.Info("Automated replies enabled", "queue", "asynq", "model", cfg.AI.Model)
		return scheduler, func(context.Context) {
			worker.Shutdown()
			scheduler.Close()
		}, nil
	}

	pool := workerpool.New(cfg.AI.Workers, 256, logger)
	logger.Info("Automated replies enabled", "queue", "pool", "model", cfg.AI.Model)
	return aireply.NewPoolScheduler(engine, pool, cfg.AI.TaskTimeout, logger), func(ctx context.Context) {
		if err := pool.Shutdown(ctx); err != nil {
			logger.Warn("Reply pool did not drain", "error", err)
		}
	}, nil
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
