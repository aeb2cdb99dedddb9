// Package bus provides event bus implementations for CredBud.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/credbud/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrClosed       = errors.New("bus is closed")
	ErrUserRequired = errors.New("userID is required")
)

// New creates a new event bus based on configuration.
// "channel" is the in-process Community bus, "nats" the Pro bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds the envelope for a publish. The active trace id,
// if any, travels in the metadata.
func newMessage(ctx context.Context, userID, topic string, payload []byte) (*domain.Message, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		UserID:    userID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata["trace_id"] = sc.TraceID().String()
	}
	return msg, nil
}
