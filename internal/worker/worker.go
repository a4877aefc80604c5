// Package worker consumes scoring events from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/scoring"
)

// AlertWorker raises an alert for every High-labeled transaction and logs
// batch summaries.
type AlertWorker struct {
	bus    domain.EventBus
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	alerts atomic.Int64
}

// NewAlertWorker creates a worker bound to bus.
func NewAlertWorker(bus domain.EventBus, logger *slog.Logger) *AlertWorker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AlertWorker{
		bus:    bus,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the scored and batch-completed topics.
func (w *AlertWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicTransactionScored, w.handleScored},
		{domain.TopicBatchCompleted, w.handleBatchCompleted},
	} {
		sub, err := w.bus.Subscribe(w.ctx, h.topic, h.handler)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", h.topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	w.logger.Info("alert worker started", "topics", len(w.subscriptions))
	return nil
}

func (w *AlertWorker) handleScored(ctx context.Context, msg *domain.Message) error {
	var ev domain.ScoredEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("failed to parse scored event %s: %w", msg.ID, err)
	}
	label, err := scoring.LabelFromString(ev.Label)
	if err != nil {
		return fmt.Errorf("scored event %s: %w", ev.ID, err)
	}
	if label != domain.LabelHigh {
		return nil
	}

	alert := domain.Alert{
		ID:        uuid.New().String(),
		EventID:   ev.ID,
		Mode:      ev.Mode,
		SessionID: ev.SessionID,
		Row:       ev.Row,
		Score:     ev.Score,
		Reasons:   ev.Reasons,
		TraceID:   ev.TraceID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	w.alerts.Add(1)
	metrics.AlertsTotal.Inc()
	w.logger.Warn("high risk transaction",
		"alert_id", alert.ID,
		"mode", alert.Mode,
		"session_id", alert.SessionID,
		"row", alert.Row,
		"score", alert.Score,
		"trace_id", alert.TraceID,
	)

	if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (w *AlertWorker) handleBatchCompleted(_ context.Context, msg *domain.Message) error {
	var ev domain.BatchCompletedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("failed to parse batch event %s: %w", msg.ID, err)
	}
	w.logger.Info("batch completed",
		"batch_id", ev.ID,
		"rows", ev.Rows,
		"scored", ev.Scored,
		"failed", ev.Failed,
		"high", ev.High,
		"velocity_flagged", ev.VelocityFlagged,
		"duration_ms", ev.DurationMs,
	)
	return nil
}

// Stop unsubscribes from every topic.
func (w *AlertWorker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil

	w.logger.Info("alert worker stopped")
	return nil
}

// Stats describes the worker's current state.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	AlertsRaised      int64    `json:"alertsRaised"`
}

// GetStats returns current worker statistics.
func (w *AlertWorker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		AlertsRaised:      w.alerts.Load(),
	}
}
