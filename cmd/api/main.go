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

	"github.com/samirrijal/siteintel/internal/adapters/http"
	natsadapter "github.com/samirrijal/siteintel/internal/adapters/nats"
	"github.com/samirrijal/siteintel/internal/adapters/postgres"
	"github.com/samirrijal/siteintel/internal/adapters/valkey"
	"github.com/samirrijal/siteintel/internal/bootstrap"
	"github.com/samirrijal/siteintel/internal/pkg/config"
	"github.com/samirrijal/siteintel/internal/pkg/logging"
	"github.com/samirrijal/siteintel/internal/pkg/telemetry"
)

const service = "siteintel-api"

func main() {
	cfg, err := config.Load(service)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, service)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Password, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable, geocode results will not be cached", "error", err)
	} else {
		defer cache.Close()
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, locks and uploads will not be announced", "error", err)
	} else {
		defer pub.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	svc, err := bootstrap.Build(cfg, db, cache, pub)
	if err != nil {
		log.Fatalf("services: %v", err)
	}
	go svc.Selection.Run(ctx, time.Duration(cfg.Selection.SweepSeconds)*time.Second)

	deps := &http.Dependencies{
		Validator:   svc.Validator,
		Geocoder:    svc.Geocoder,
		Extractor:   svc.Extractor,
		Matcher:     svc.Matcher,
		Surveys:     svc.Surveys,
		Calibration: svc.Calibration,
		Selection:   svc.Selection,
		Parcels:     svc.Parcels,
		NATS:        natsConn,
		DB:          db,
		Cache:       cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		AppName:      "SiteIntel API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	cancel()

	slog.Info("server stopped")
}
