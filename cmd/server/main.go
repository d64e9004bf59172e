package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/polylend/internal/app"
	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/handler"
	"github.com/GoPolymarket/polylend/internal/notify"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Assemble the engine
	engine, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// 4. Admin HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Currency:    cfg.Trading.Currency,
		AdminKey:    cfg.Auth.AdminKey,
		AdminRPS:    cfg.Server.AdminRPS,
		AdminBurst:  cfg.Server.AdminBurst,
		MetricsPath: cfg.Server.MetricsPath,
	}, engine.Journal, engine.Store, engine.Scheduler)
	if cfg.Auth.AdminKey == "" {
		logger.Warn("auth.admin_key is empty, the /v1 admin API is closed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	_ = engine.Notifier.Notify(ctx, notify.Info, fmt.Sprintf("polylend started: %s %s via %s, strategy %s",
		cfg.Trading.Currency, cfg.Exchange.Name, cfg.Database.Driver, engine.Strategy.Name()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("polylend started", "port", cfg.Server.Port, "currency", cfg.Trading.Currency, "strategy", engine.Strategy.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return engine.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("polylend stopped with error", "error", err)
	}

	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = engine.Notifier.Notify(notifyCtx, notify.Info, "polylend stopped: "+cfg.Trading.Currency)
	logger.Info("server exiting")
}
