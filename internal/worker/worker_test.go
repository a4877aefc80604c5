package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

func publishScored(t *testing.T, b domain.EventBus, ev domain.ScoredEvent) {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicTransactionScored, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestAlertWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewAlertWorker(eventBus, nil)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("HighLabelRaisesAlert", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		alerts := make(chan domain.Alert, 4)
		_, err := eventBus.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			var a domain.Alert
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				return err
			}
			alerts <- a
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		w := NewAlertWorker(eventBus, nil)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		publishScored(t, eventBus, domain.ScoredEvent{
			ID:        "ev-low",
			Mode:      domain.ModeInteractive,
			SessionID: "s1",
			Score:     10,
			Label:     domain.LabelLow.Name,
		})
		publishScored(t, eventBus, domain.ScoredEvent{
			ID:        "ev-high",
			Mode:      domain.ModeBatch,
			Row:       7,
			Score:     85,
			Label:     domain.LabelHigh.Name,
			Reasons:   []string{"Nighttime transaction (00:00-05:59)"},
			Timestamp: time.Now(),
		})

		select {
		case a := <-alerts:
			if a.EventID != "ev-high" {
				t.Errorf("expected alert for ev-high, got %s", a.EventID)
			}
			if a.Score != 85 || a.Row != 7 || a.Mode != domain.ModeBatch {
				t.Errorf("unexpected alert: %+v", a)
			}
			if a.ID == "" {
				t.Error("expected alert id")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for alert")
		}

		select {
		case a := <-alerts:
			t.Errorf("unexpected second alert: %+v", a)
		case <-time.After(50 * time.Millisecond):
		}

		if got := w.GetStats().AlertsRaised; got != 1 {
			t.Errorf("expected 1 alert raised, got %d", got)
		}
	})

	t.Run("MalformedPayloadIgnored", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewAlertWorker(eventBus, nil)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		_ = eventBus.Publish(context.Background(), domain.TopicTransactionScored, []byte("not json"))
		_ = eventBus.Publish(context.Background(), domain.TopicBatchCompleted, []byte("{}"))
		time.Sleep(50 * time.Millisecond)

		if got := w.GetStats().AlertsRaised; got != 0 {
			t.Errorf("expected no alerts, got %d", got)
		}
	})

	t.Run("StartFailsOnClosedBus", func(t *testing.T) {
		eventBus := bus.NewChannelBus(10)
		_ = eventBus.Close()

		if err := NewAlertWorker(eventBus, nil).Start(); err == nil {
			t.Error("expected error starting on a closed bus")
		}
	})
}
