package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, domain.TopicLoanSubmitted, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, "user-001", domain.TopicLoanSubmitted, []byte(`{"loanId":"l1"}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-got:
			if msg.UserID != "user-001" {
				t.Errorf("expected user-001, got %s", msg.UserID)
			}
			if msg.Topic != domain.TopicLoanSubmitted {
				t.Errorf("unexpected topic %s", msg.Topic)
			}
			if msg.ID == "" || msg.Timestamp == 0 {
				t.Error("envelope not populated")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("FanOutToAllSubscribers", func(t *testing.T) {
		var a, b atomic.Int32
		bus.Subscribe(ctx, "fanout", func(ctx context.Context, msg *domain.Message) error { a.Add(1); return nil })
		bus.Subscribe(ctx, "fanout", func(ctx context.Context, msg *domain.Message) error { b.Add(1); return nil })

		_ = bus.Publish(ctx, "u", "fanout", nil)
		waitFor(t, func() bool { return a.Load() == 1 && b.Load() == 1 })
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var other atomic.Int32
		bus.Subscribe(ctx, "topic.a", func(ctx context.Context, msg *domain.Message) error { other.Add(1); return nil })

		_ = bus.Publish(ctx, "u", "topic.b", nil)
		time.Sleep(20 * time.Millisecond)
		if other.Load() != 0 {
			t.Error("subscriber received message for another topic")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, _ := bus.Subscribe(ctx, "unsub", func(ctx context.Context, msg *domain.Message) error { count.Add(1); return nil })

		if sub.Topic() != "unsub" {
			t.Errorf("unexpected topic %s", sub.Topic())
		}
		_ = sub.Unsubscribe()
		_ = bus.Publish(ctx, "u", "unsub", nil)
		time.Sleep(20 * time.Millisecond)
		if count.Load() != 0 {
			t.Error("received after unsubscribe")
		}
	})

	t.Run("HandlerErrorDoesNotStopSubscription", func(t *testing.T) {
		var calls atomic.Int32
		bus.Subscribe(ctx, "flaky", func(ctx context.Context, msg *domain.Message) error {
			calls.Add(1)
			return errors.New("boom")
		})

		_ = bus.Publish(ctx, "u", "flaky", nil)
		_ = bus.Publish(ctx, "u", "flaky", nil)
		waitFor(t, func() bool { return calls.Load() == 2 })
	})

	t.Run("RequiresUserID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "x", nil); !errors.Is(err, ErrUserRequired) {
			t.Errorf("expected ErrUserRequired, got %v", err)
		}
	})

	t.Run("TraceIDInMetadata", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		bus.Subscribe(ctx, "traced", func(ctx context.Context, msg *domain.Message) error { got <- msg; return nil })

		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
		traced := trace.ContextWithSpanContext(ctx, sc)

		_ = bus.Publish(traced, "u", "traced", nil)
		msg := <-got
		if msg.Metadata["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("trace id not propagated: %v", msg.Metadata)
		}
	})
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	release := make(chan struct{})
	var handled atomic.Int32
	bus.Subscribe(context.Background(), "slow", func(ctx context.Context, msg *domain.Message) error {
		<-release
		handled.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := bus.Publish(context.Background(), "u", "slow", nil); err != nil {
			t.Fatalf("publish must not block or fail: %v", err)
		}
	}
	close(release)

	time.Sleep(50 * time.Millisecond)
	if n := handled.Load(); n >= 5 {
		t.Errorf("expected some messages to be dropped, handled %d", n)
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	if err := bus.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}

	if err := bus.Publish(ctx, "u", "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	data, _ := json.Marshal(domain.Message{ID: "m1", UserID: "u", Topic: "t", Payload: []byte("p")})
	msg, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decodeEnvelope failed: %v", err)
	}
	if string(msg.Payload) != "p" {
		t.Errorf("payload mismatch: %q", msg.Payload)
	}

	noUser, _ := json.Marshal(domain.Message{ID: "m2"})
	if _, err := decodeEnvelope(noUser); !errors.Is(err, ErrUserRequired) {
		t.Errorf("expected ErrUserRequired, got %v", err)
	}
	if _, err := decodeEnvelope([]byte("{")); err == nil {
		t.Error("expected error for malformed envelope")
	}
}

func TestNewUnsupported(t *testing.T) {
	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
