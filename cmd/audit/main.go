package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/config"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	natsbus "github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/events/nats"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/observability/logging"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("customs-audit", cfg.LogLevel))

	if cfg.NATSURL == "" {
		slog.Error("audit consumer requires NATS_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := natsbus.New(natsbus.Config{
		URL:        cfg.NATSURL,
		ClientName: "customs-audit",
		Resilience: resilience.DefaultConfig(),
	})
	if err != nil {
		slog.Error("event bus error", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	m := metrics.NewAuditMetrics("audit")

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:         ":" + cfg.AuditMetricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("audit metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := bus.SubscribeRoutingDecided(ctx, handleRoutingDecided(m)); err != nil {
			slog.Error("routing subscription error", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := bus.SubscribeAnswerCompleted(ctx, handleAnswerCompleted(m)); err != nil {
			slog.Error("answer subscription error", "error", err)
			stop()
		}
	}()

	slog.Info("audit consuming",
		"subjects", []string{natsbus.SubjectRoutingDecided, natsbus.SubjectAnswerCompleted})
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	slog.Info("audit stopped")
}

func handleRoutingDecided(m *metrics.AuditMetrics) func(context.Context, domain.RoutingDecision) error {
	return func(_ context.Context, decision domain.RoutingDecision) error {
		started := time.Now()
		if !decision.CreatedAt.IsZero() {
			m.ObserveEventLag(natsbus.SubjectRoutingDecided, time.Since(decision.CreatedAt))
		}
		slog.Info("routing_decided",
			"session_id", decision.SessionID,
			"specialist", decision.Specialist,
			"source", decision.Source,
			"complexity", decision.Complexity,
			"requires_multiple", decision.RequiresMultiple,
			"step", decision.Step,
		)
		m.ObserveEvent(natsbus.SubjectRoutingDecided, time.Since(started), nil)
		return nil
	}
}

func handleAnswerCompleted(m *metrics.AuditMetrics) func(context.Context, domain.AnswerEvent) error {
	return func(_ context.Context, event domain.AnswerEvent) error {
		started := time.Now()
		if !event.CreatedAt.IsZero() {
			m.ObserveEventLag(natsbus.SubjectAnswerCompleted, time.Since(event.CreatedAt))
		}
		slog.Info("answer_completed",
			"session_id", event.SessionID,
			"specialist", event.Specialist,
			"degraded", event.Degraded,
			"degraded_reason", event.DegradedReason,
			"passage_count", event.PassageCount,
			"latency_ms", event.LatencyMS,
		)
		m.ObserveEvent(natsbus.SubjectAnswerCompleted, time.Since(started), nil)
		return nil
	}
}
