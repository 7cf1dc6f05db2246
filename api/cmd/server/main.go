package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"parascope/api/internal/app"
	"parascope/api/internal/config"
	"parascope/api/internal/handle"
	"parascope/api/internal/httpserver"
	"parascope/api/internal/logger"
	"parascope/api/internal/observability"
)

const service = "parascope-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateVision(); err != nil {
		log.Fatal("invalid config", "err", err)
	}
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName:    service,
		Environment:    cfg.LogMode,
		VisionProvider: cfg.Provider,
		VisionModel:    cfg.VisionModel(),
		Store:          cfg.Store,
	})
	defer func() { _ = shutdownOTel(context.Background()) }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init app", "err", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Fatal("migrate", "err", err)
	}

	h := handle.New(handle.Deps{
		Pipeline: a.Pipeline,
		Samples:  a.Samples,
		Reports:  a.Reports,
		Refs:     a.Images,
		Renderer: a.Renderer,
		Health:   a.Health,
		Log:      log,
	})

	addr := "0.0.0.0:" + cfg.Port
	log.Info("starting api", "provider", a.Engine.Name(), "model", a.Engine.GetModel(), "store", cfg.Store)
	if err := httpserver.Serve(ctx, addr, handle.Router(h, service), log); err != nil {
		log.Error("http server", "err", err)
	}
}
