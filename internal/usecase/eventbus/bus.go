package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"switchboard/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Handlers run
// asynchronously so a slow subscriber never delays a routing decision.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool

	published atomic.Uint64
	panics    atomic.Uint64
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event
// subscribers. Events published after Close are dropped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		b.logger.Debug("event dropped after close", "event", string(event.Type))
		return
	}
	b.published.Add(1)

	b.mu.RLock()
	typed := append([]subscription(nil), b.typed[event.Type]...)
	allSubs := append([]subscription(nil), b.allSubs...)
	b.mu.RUnlock()

	// Handlers outlive the publishing request.
	ctx = context.WithoutCancel(ctx)
	for _, sub := range typed {
		b.dispatch(ctx, event, sub)
	}
	for _, sub := range allSubs {
		b.dispatch(ctx, event, sub)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.panics.Add(1)
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = without(b.typed[eventType], id)
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = without(b.allSubs, id)
	}
}

func without(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Drain waits for every handler dispatched so far to return.
func (b *Bus) Drain() {
	b.wg.Wait()
}

// Stats reports how many events were published and how many handlers panicked.
func (b *Bus) Stats() (published, panics uint64) {
	return b.published.Load(), b.panics.Load()
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

// LogRouting subscribes a handler that writes routing and delegation events
// to logger. Returns the unsubscribe function.
func LogRouting(bus domain.EventBus, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		switch ev.Type {
		case domain.EventAgentRouted:
			var p domain.AgentRoutedPayload
			if json.Unmarshal(ev.Payload, &p) == nil {
				logger.InfoContext(ctx, "agent routed",
					"session_id", ev.SessionID, "agent", p.Agent, "path", p.Path,
					"confidence", p.Confidence, "request_id", p.RequestID)
			}
		case domain.EventAgentDelegated:
			var p domain.AgentDelegatedPayload
			if json.Unmarshal(ev.Payload, &p) == nil {
				logger.DebugContext(ctx, "agent delegated",
					"session_id", ev.SessionID, "from", p.From, "to", p.To, "depth", p.Depth)
			}
		case domain.EventAgentError:
			var p domain.AgentErrorPayload
			if json.Unmarshal(ev.Payload, &p) == nil {
				logger.WarnContext(ctx, "agent error",
					"session_id", ev.SessionID, "agent", p.Agent, "code", p.Code, "error", p.Error)
			}
		}
	})
}
