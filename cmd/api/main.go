package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	"github.com/BruksfildServices01/slot-scheduler/internal/config"
	dbpkg "github.com/BruksfildServices01/slot-scheduler/internal/db"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/lock"
	"github.com/BruksfildServices01/slot-scheduler/internal/middleware"
	"github.com/BruksfildServices01/slot-scheduler/internal/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	db, err := dbpkg.NewDB(cfg, logger)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	locker, closeLocker, err := newLocker(cfg, logger)
	if err != nil {
		logger.Error("failed to set up entity lock", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	dispatcher := audit.NewDispatcher(audit.New(db), cfg.AuditQueueSize, logger)
	defer dispatcher.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes.RegisterRoutes(r, db, cfg, routes.Deps{
		Locker: locker,
		Audit:  dispatcher,
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server running", "addr", cfg.Addr(), "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// newLocker picks the Redis lease when REDIS_URL is set and the in-process
// lock otherwise.
func newLocker(cfg *config.Config, logger *slog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, entity lock is local to this process")
		return lock.NewLocalLocker(), func() {}, nil
	}

	client, err := lock.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return lock.NewRedisLocker(client, cfg.LockTTL, logger), func() { _ = client.Close() }, nil
}
