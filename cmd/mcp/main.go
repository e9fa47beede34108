package main

import (
	"log/slog"
	"os"

	mcpadapter "github.com/ktBigDeal/customs-clearance-sub000/internal/adapters/mcp"
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
	// Stdout carries the MCP stream, so logs go to stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "customs-mcp", cfg.LogLevel))

	app, err := bootstrap.NewSearchOnly(cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.Search, app.Normalizer, app.Filters)
	slog.Info("mcp serving on stdio")
	if err := server.Run(); err != nil {
		slog.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
