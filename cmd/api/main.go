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

	httpadapter "github.com/ktBigDeal/customs-clearance-sub000/internal/adapters/http"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/bootstrap"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/config"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("customs-api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	handler := httpadapter.NewRouter(cfg, app.Ask, app.Search, app.Sessions, app.Metrics).Handler()
	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// Specialist answers may take up to the specialist timeout.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.APIShutdownGraceSecond)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
	slog.Info("api stopped")
}
