package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

const (
	// DefaultMaxAttempts bounds delivery attempts per subscriber and event.
	DefaultMaxAttempts     = 3
	defaultInitialInterval = 5 * time.Millisecond
	defaultMaxInterval     = 100 * time.Millisecond
)

// HandlerFunc applies one event to a read model.
type HandlerFunc func(ctx context.Context, evt event.Event) error

// Subscription binds an event type to the handler that consumes it.
type Subscription struct {
	Type  event.Type
	Apply HandlerFunc
}

// ReadModel is a derived view fed by the bus.
type ReadModel interface {
	Name() string
	Subscriptions() []Subscription
}

// DeadLetter records a delivery that failed every attempt.
type DeadLetter struct {
	ReadModel string
	Event     event.Event
	Attempts  int
	Err       error
}

// Options configures a Bus.
type Options struct {
	Logger          *zap.Logger
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Bus routes stored events to subscribed read models.
type Bus struct {
	logger          *zap.Logger
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration

	mu          sync.RWMutex
	models      map[string]struct{}
	subscribers map[event.Type][]subscriber

	streams sync.Map // stream id -> *sequencer

	deadMu      sync.Mutex
	deadLetters []DeadLetter
}

type subscriber struct {
	model string
	apply HandlerFunc
}

// NewBus creates a bus with no subscribers.
func NewBus(opts Options) *Bus {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}
	return &Bus{
		logger:          opts.Logger.Named("projection"),
		maxAttempts:     opts.MaxAttempts,
		initialInterval: opts.InitialInterval,
		maxInterval:     opts.MaxInterval,
		models:          make(map[string]struct{}),
		subscribers:     make(map[event.Type][]subscriber),
	}
}

// Register indexes the read model's subscriptions. Subscribers of one event
// type are called in registration order.
func (b *Bus) Register(rm ReadModel) error {
	if rm == nil {
		return errors.New("read model is required")
	}
	name := strings.TrimSpace(rm.Name())
	if name == "" {
		return errors.New("read model name is required")
	}
	subs := rm.Subscriptions()
	seen := make(map[event.Type]struct{}, len(subs))
	for _, sub := range subs {
		if strings.TrimSpace(string(sub.Type)) == "" {
			return fmt.Errorf("read model %s: subscription type is required", name)
		}
		if sub.Apply == nil {
			return fmt.Errorf("read model %s: handler for %s is required", name, sub.Type)
		}
		if _, dup := seen[sub.Type]; dup {
			return fmt.Errorf("read model %s: duplicate subscription for %s", name, sub.Type)
		}
		seen[sub.Type] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.models[name]; exists {
		return fmt.Errorf("read model already registered: %s", name)
	}
	b.models[name] = struct{}{}
	for _, sub := range subs {
		b.subscribers[sub.Type] = append(b.subscribers[sub.Type], subscriber{model: name, apply: sub.Apply})
	}
	return nil
}

// SubscribedTypes lists the event types with at least one subscriber.
func (b *Bus) SubscribedTypes() []event.Type {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]event.Type, 0, len(b.subscribers))
	for t := range b.subscribers {
		types = append(types, t)
	}
	return types
}

// Publish hands stored events to the stream sequencers. Events must carry
// the StreamID and Seq assigned by the store. Delivery failures are logged and
// kept as dead letters; they never surface to the caller.
func (b *Bus) Publish(ctx context.Context, events ...event.Event) {
	for _, evt := range events {
		if evt.StreamID == "" || evt.Seq == 0 {
			b.logger.Warn("dropping unsequenced event",
				zap.String("stream_id", evt.StreamID),
				zap.String("event_type", string(evt.Type)),
			)
			continue
		}
		b.sequencer(evt.StreamID).offer(ctx, b, evt)
	}
}

// DeadLetters returns a copy of the exhausted deliveries.
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	for i, letter := range b.deadLetters {
		letter.Event = letter.Event.Clone()
		out[i] = letter
	}
	return out
}

func (b *Bus) sequencer(streamID string) *sequencer {
	if value, ok := b.streams.Load(streamID); ok {
		return value.(*sequencer)
	}
	value, _ := b.streams.LoadOrStore(streamID, newSequencer())
	return value.(*sequencer)
}

func (b *Bus) subscribersFor(evtType event.Type) []subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers[evtType]
}

// deliver fans one in-order event out to its subscribers.
func (b *Bus) deliver(ctx context.Context, evt event.Event) {
	for _, sub := range b.subscribersFor(evt.Type) {
		attempts, err := b.attempt(ctx, sub, evt)
		if err == nil {
			continue
		}
		b.logger.Error("projection delivery failed",
			zap.String("read_model", sub.model),
			zap.String("stream_id", evt.StreamID),
			zap.Uint64("seq", evt.Seq),
			zap.String("event_type", string(evt.Type)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		b.deadMu.Lock()
		b.deadLetters = append(b.deadLetters, DeadLetter{
			ReadModel: sub.model,
			Event:     evt.Clone(),
			Attempts:  attempts,
			Err:       err,
		})
		b.deadMu.Unlock()
	}
}

func (b *Bus) attempt(ctx context.Context, sub subscriber, evt event.Event) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.initialInterval
	policy.MaxInterval = b.maxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		// Each attempt gets its own copy so a handler cannot corrupt the next one.
		return struct{}{}, sub.apply(ctx, evt.Clone())
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(b.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			b.logger.Debug("retrying projection delivery",
				zap.String("read_model", sub.model),
				zap.Uint64("seq", evt.Seq),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	return attempts, err
}
