package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Mortvola/tracker/internal/adapters/http"
	natsadapter "github.com/Mortvola/tracker/internal/adapters/nats"
	"github.com/Mortvola/tracker/internal/adapters/postgres"
	"github.com/Mortvola/tracker/internal/adapters/valkey"
	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/ports"
	"github.com/Mortvola/tracker/internal/core/usecases"
	"github.com/Mortvola/tracker/internal/pkg/config"
	"github.com/Mortvola/tracker/internal/pkg/logging"
	"github.com/Mortvola/tracker/internal/pkg/metrics"
	"github.com/Mortvola/tracker/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("tracker-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache is optional; keep the interface nil when it is missing.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	loc, err := cfg.Trail.Location()
	if err != nil {
		log.Fatalf("trail time zone: %v", err)
	}

	trailSvc := usecases.NewTrailService(postgres.NewTrailRepo(db), cacheSvc)
	historySvc := usecases.NewHistoryService(postgres.NewHistoryStore(db), cacheSvc, loc)

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Drain()
	}

	// Drop cached reads as soon as the updater reports a change.
	if cacheSvc != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("change subscriber unavailable, cached incidents expire by ttl", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribeChanges(ctx, "", func(ctx context.Context, e *domain.ChangeEvent) error {
				return historySvc.Invalidate(ctx, e.GlobalID)
			})
			if err != nil {
				slog.Warn("subscribe to changes failed", "error", err)
			}
		}
	}

	go reportPoolStats(ctx, db)

	deps := &http.Dependencies{
		Trails:    trailSvc,
		History:   historySvc,
		TrailName: cfg.Trail.Name,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Trail Incident Tracker API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, If-None-Match",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "trail", cfg.Trail.Name)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// reportPoolStats publishes connection pool gauges every 15 seconds.
func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if stat := db.Stat(); stat != nil {
				metrics.UpdateDBPoolMetrics(stat)
			}
		case <-ctx.Done():
			return
		}
	}
}
