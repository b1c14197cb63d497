// Package internal bootstraps the server: configuration, logging, migrations,
// the database pool, the optional session cache, managers, the router and a
// graceful shutdown path.
package internal

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/kithnet/server-core/internal/config"
	"github.com/kithnet/server-core/internal/handlers"
	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/migrations"
	"github.com/kithnet/server-core/internal/routing"
)

const (
	shutdownGrace        = 5 * time.Second
	housekeepingInterval = 10 * time.Minute
	// Read notifications are kept for a month before the purge removes them.
	notificationRetention = 30 * 24 * time.Hour
)

// Init wires the whole server together and blocks until shutdown.
func Init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading configuration: ", err)
	}
	setLogLevel(cfg.LogLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := migrations.Up(cfg.DatabaseDSN()); err != nil {
		log.Fatal("Error running migrations: ", err)
	}

	pool := initPool(cfg)
	defer pool.Close()

	cache := initCache(cfg)
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	sessionManager, err := managers.NewSessionManager(cfg.KeyPairPath, cfg.JWTExpirationDays, pool, cache)
	if err != nil {
		log.Fatal("Error initializing session manager: ", err)
	}

	resetManager := managers.NewResetManager(sessionManager, cfg.ResetTokenExpiration, cfg.ResetTokenMaxActive)

	mgrs := &routing.Managers{
		Database:   managers.NewDatabaseManager(pool),
		Session:    sessionManager,
		Reset:      resetManager,
		Connection: managers.NewConnectionManager(),
		Role:       managers.NewRoleManager(),
		Mail:       managers.NewMailManager(cfg.MailgunAPIKey, cfg.MailgunDomain, cfg.IsProduction()),
		Moderation: managers.NewModerationManager(cfg.ModerationURL),
	}

	housekeepingCtx, stopHousekeeping := context.WithCancel(context.Background())
	defer stopHousekeeping()
	go runHousekeeping(housekeepingCtx, pool, resetManager)

	router := routing.InitRouter(mgrs, cfg)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Server listening on port ", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Error starting server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down server: ", err)
	}
	log.Info("Server stopped")
}

func initPool(cfg *config.Config) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		log.Fatal("Error parsing database configuration: ", err)
	}
	poolConfig.MinConns = 5
	poolConfig.MaxConns = 30
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatal("Error creating database pool: ", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal("Error reaching database: ", err)
	}

	return pool
}

// initCache connects the optional session-validity cache. Without REDIS_ADDR
// the server runs ledger-only, which is slower but fully correct.
func initCache(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("No Redis address configured, session lookups go to the ledger only")
		return nil
	}

	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	if err := cache.Ping(context.Background()).Err(); err != nil {
		log.Warn("Error reaching Redis, continuing without session cache: ", err)
		_ = cache.Close()
		return nil
	}

	return cache
}

// runHousekeeping periodically removes expired reset tokens and stale read
// notifications. Failures are logged and retried on the next tick.
func runHousekeeping(ctx context.Context, pool *pgxpool.Pool, resetManager managers.ResetMgr) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := resetManager.PurgeExpired(ctx, pool); err != nil {
				log.Warn("Error purging expired reset tokens: ", err)
			}
			if err := handlers.PurgeReadNotifications(ctx, pool, notificationRetention); err != nil {
				log.Warn("Error purging read notifications: ", err)
			}
		}
	}
}

func setLogLevel(level string) {
	parsed, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
