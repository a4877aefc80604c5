package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// New creates the event bus named by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none":
		return Nop{}, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Nop discards every published event.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }

func (Nop) Subscribe(_ context.Context, topic string, _ domain.MessageHandler) (domain.Subscription, error) {
	return nopSubscription(topic), nil
}

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }

type nopSubscription string

func (nopSubscription) Unsubscribe() error { return nil }

func (s nopSubscription) Topic() string { return string(s) }
