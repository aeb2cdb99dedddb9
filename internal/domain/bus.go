package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic on behalf of a user.
	Publish(ctx context.Context, userID string, topic string, payload []byte) error

	// Subscribe registers a handler for every message on a topic.
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
	UserID    string            `json:"userId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
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
	// Type is the bus type: "channel" or "nats"
	Type string `mapstructure:"type" json:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `mapstructure:"channelBufferSize" json:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `mapstructure:"natsUrl" json:"natsUrl"`
	NATSToken         string `mapstructure:"natsToken" json:"-"`
	NATSMaxReconnects int    `mapstructure:"natsMaxReconnects" json:"natsMaxReconnects"`
	NATSReconnectWait int    `mapstructure:"natsReconnectWait" json:"natsReconnectWait"` // seconds
}

// Topics of the application pipeline.
const (
	TopicLoanSubmitted     = "credbud.loan.submitted"
	TopicLoanDecided       = "credbud.loan.decided"
	TopicStatementUploaded = "credbud.statement.uploaded"
	TopicBehaviorAnalyzed  = "credbud.behavior.analyzed"
)

// LoanEvent is the payload of loan topics.
type LoanEvent struct {
	LoanID string     `json:"loanId"`
	Status LoanStatus `json:"status,omitempty"`
	Score  float64    `json:"score,omitempty"`
}

// StatementEvent is the payload of statement and behaviour topics.
type StatementEvent struct {
	StatementID string  `json:"statementId"`
	Rating      string  `json:"rating,omitempty"`
	TotalScore  float64 `json:"totalScore,omitempty"`
}
