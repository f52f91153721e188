package eventbus

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pathwise/internal/platform/clock"
	"pathwise/internal/platform/id"
)

type Type string

const (
	ActionTracked    Type = "ACTION_TRACKED"
	PredictionReady  Type = "PREDICTION_READY"
	PredictionFailed Type = "PREDICTION_FAILED"
	JourneyUpdated   Type = "JOURNEY_UPDATED"
)

const DefaultHistoryCap = 100

type Event struct {
	ID        string
	Type      Type
	Payload   any
	Source    string
	Timestamp time.Time
}

type Handler func(Event)

// Unsubscribe removes exactly one subscription. Calling it twice is a no-op.
type Unsubscribe func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. Handlers for a specific type run
// before wildcard handlers, each group in subscription order. A panicking
// handler is logged and does not stop delivery to the rest.
type Bus struct {
	clock  clock.Clock
	ids    id.Generator
	logger *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	byType   map[Type][]subscription
	wildcard []subscription
	history  *ring
	last     map[Type]Event
}

func New(clk clock.Clock, ids id.Generator, logger *zap.Logger, historyCap int) *Bus {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if ids == nil {
		ids = id.UUID{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Bus{
		clock:   clk,
		ids:     ids,
		logger:  logger,
		byType:  map[Type][]subscription{},
		history: newRing(historyCap),
		last:    map[Type]Event{},
	}
}

func (b *Bus) On(eventType Type, handler Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	subID := b.nextID
	b.byType[eventType] = append(b.byType[eventType], subscription{id: subID, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[eventType] = without(b.byType[eventType], subID)
		if len(b.byType[eventType]) == 0 {
			delete(b.byType, eventType)
		}
	}
}

func (b *Bus) OnAll(handler Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	subID := b.nextID
	b.wildcard = append(b.wildcard, subscription{id: subID, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = without(b.wildcard, subID)
	}
}

// Emit records the event and delivers it to a snapshot of the current
// subscribers. Handlers added or removed during delivery take effect on the
// next Emit.
func (b *Bus) Emit(eventType Type, payload any, source string) Event {
	ev := Event{
		ID:        b.ids.New(),
		Type:      eventType,
		Payload:   payload,
		Source:    source,
		Timestamp: b.clock.Now(),
	}

	b.mu.Lock()
	b.history.push(ev)
	b.last[eventType] = ev
	targets := make([]subscription, 0, len(b.byType[eventType])+len(b.wildcard))
	targets = append(targets, b.byType[eventType]...)
	targets = append(targets, b.wildcard...)
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, ev)
	}
	return ev
}

func (b *Bus) deliver(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", string(ev.Type)),
				zap.String("event_id", ev.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	sub.handler(ev)
}

// Off drops every handler registered for eventType. Wildcard handlers stay.
func (b *Bus) Off(eventType Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byType, eventType)
}

// Clear drops all handlers and the recorded history.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType = map[Type][]subscription{}
	b.wildcard = nil
	b.history.reset()
	b.last = map[Type]Event{}
}

// History returns up to limit of the newest events, oldest first.
func (b *Bus) History(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.last(limit)
}

func (b *Bus) LastEvent(eventType Type) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.last[eventType]
	return ev, ok
}

func (b *Bus) HasListeners(eventType Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byType[eventType]) > 0 || len(b.wildcard) > 0
}

func without(subs []subscription, subID uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.id != subID {
			out = append(out, sub)
		}
	}
	return out
}
