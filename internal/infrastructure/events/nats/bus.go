// Package nats publishes routing and answer events and feeds them to the
// audit consumer. Events are observability data; a publish failure must
// never fail the request that produced the event.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
)

const (
	SubjectRoutingDecided  = "customs.routing.decided"
	SubjectAnswerCompleted = "customs.answers.completed"

	// All audit consumers share one queue group so each event is handled once.
	auditQueueGroup = "audit"
)

type Config struct {
	URL            string
	ClientName     string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int

	Resilience resilience.Config
}

type Bus struct {
	conn *nats.Conn
	exec *resilience.Executor
}

func New(cfg Config) (*Bus, error) {
	if cfg.ClientName == "" {
		cfg.ClientName = "customs-clearance"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 60
	}

	conn, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.ClientName),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{conn: conn, exec: resilience.NewExecutor(cfg.Resilience)}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishRoutingDecided(ctx context.Context, decision domain.RoutingDecision) error {
	return b.publish(ctx, "publish_routing_decided", SubjectRoutingDecided, decision)
}

func (b *Bus) PublishAnswerCompleted(ctx context.Context, event domain.AnswerEvent) error {
	return b.publish(ctx, "publish_answer_completed", SubjectAnswerCompleted, event)
}

// SubscribeRoutingDecided blocks until ctx is canceled, then drains the
// subscription.
func (b *Bus) SubscribeRoutingDecided(ctx context.Context, handler func(context.Context, domain.RoutingDecision) error) error {
	return subscribeJSON(ctx, b, SubjectRoutingDecided, handler)
}

// SubscribeAnswerCompleted blocks until ctx is canceled, then drains the
// subscription.
func (b *Bus) SubscribeAnswerCompleted(ctx context.Context, handler func(context.Context, domain.AnswerEvent) error) error {
	return subscribeJSON(ctx, b, SubjectAnswerCompleted, handler)
}

func (b *Bus) publish(ctx context.Context, operation, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode event: %w", operation, err)
	}
	err = b.exec.Execute(ctx, operation, classifyNATSError, func(_ context.Context) error {
		if err := b.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	})
	return wrapTemporaryIfNeeded(operation, err)
}

func subscribeJSON[T any](ctx context.Context, b *Bus, subject string, handler func(context.Context, T) error) error {
	sub, err := b.conn.QueueSubscribe(subject, auditQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		var event T
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("event_decode_failed", "subject", subject, "error", err)
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Warn("event_handler_failed", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
