package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/credbud/internal/domain"
)

// QueueGroup makes each message go to one worker per deployment.
const QueueGroup = "credbud-workers"

// NATSBus implements EventBus using NATS.
// Used as the Pro tier event bus with resilience.
type NATSBus struct {
	mu            sync.Mutex
	conn          *nats.Conn
	subscriptions map[string]*natsSubscription
}

type natsSubscription struct {
	id    string
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to NATS, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	opts := []nats.Option{
		nats.Name("credbud"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS error", "error", err, "subject", subject)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		conn, err = nats.Connect(cfg.NATSUrl, opts...)
		if err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
	)

	return &NATSBus{
		conn:          conn,
		subscriptions: make(map[string]*natsSubscription),
	}, nil
}

// Publish sends a JSON envelope to the topic subject.
func (b *NATSBus) Publish(ctx context.Context, userID string, topic string, payload []byte) error {
	msg, err := newMessage(ctx, userID, topic, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.conn.Publish(topic, data)
}

// Subscribe joins the worker queue group for a topic.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	natsSub, err := b.conn.QueueSubscribe(topic, QueueGroup, func(m *nats.Msg) {
		msg, err := decodeEnvelope(m.Data)
		if err != nil {
			slog.Error("failed to unmarshal NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"message_id", msg.ID,
				"user_id", msg.UserID,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &natsSubscription{
		id:    uuid.New().String(),
		topic: topic,
		sub:   natsSub,
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

func decodeEnvelope(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, ErrUserRequired
	}
	return &msg, nil
}

// Ping checks NATS connectivity.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		_ = sub.sub.Unsubscribe()
	}
	b.subscriptions = make(map[string]*natsSubscription)

	b.conn.Close()
	return nil
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
