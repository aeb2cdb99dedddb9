package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/opensource-finance/credbud/internal/domain"
)

// ChannelBus implements EventBus using Go channels.
// Used as the Community tier event bus. Delivery is best effort:
// a subscriber whose buffer is full misses the message.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
	wg            sync.WaitGroup
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish delivers a message to every subscriber of the topic without blocking.
func (b *ChannelBus) Publish(ctx context.Context, userID string, topic string, payload []byte) error {
	msg, err := newMessage(ctx, userID, topic, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.subscriptions[topic] {
		select {
		case sub.msgCh <- msg:
		default:
			slog.Warn("subscriber buffer full, dropping message",
				"topic", topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe registers a handler for a topic. The handler runs on its own
// goroutine until ctx is cancelled or the subscription is removed.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	b.wg.Add(1)
	go b.handleMessages(sub)

	b.subscriptions[topic] = append(b.subscriptions[topic], sub)
	return sub, nil
}

func (b *ChannelBus) handleMessages(sub *channelSubscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg := <-sub.msgCh:
			if err := sub.handler(sub.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", sub.topic,
					"message_id", msg.ID,
					"user_id", msg.UserID,
					"error", err,
				)
			}
		}
	}
}

func (b *ChannelBus) remove(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscriptions[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription and waits for in-flight handlers.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.subscriptions = make(map[string][]*channelSubscription)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	s.bus.remove(s)
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
