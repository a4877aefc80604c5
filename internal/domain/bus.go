package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (in-process) or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "none"
	Type string `json:"type"`

	ChannelBufferSize int `json:"channelBufferSize"`

	NATSUrl           string `json:"natsUrl"`
	NATSToken         string `json:"-"`
	NATSMaxReconnects int    `json:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait"` // seconds
}

// Standard topic names.
const (
	TopicTransactionScored = "fraudlens.transaction.scored"
	TopicBatchCompleted    = "fraudlens.batch.completed"
	TopicAlert             = "fraudlens.alert"
)
