package intercept

import (
	"context"
	"sync"
)

// Scope selects which observations a subscriber receives.
type Scope int

const (
	// ScopeNavigation receives top-level navigations only.
	ScopeNavigation Scope = iota + 1
	// ScopeAll receives every observation, navigations included.
	ScopeAll
)

// KindMainFrame marks a top-level navigation observation.
const KindMainFrame = "main_frame"

// Observation is one request seen by the external interceptor, with the
// response body it captured.
type Observation struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Kind   string `json:"type"`
	Body   string `json:"body,omitempty"`
}

// IsNavigation reports whether o is a top-level navigation.
func (o Observation) IsNavigation() bool {
	return o.Kind == KindMainFrame
}

// Handler consumes an observation. It runs on the publisher's goroutine.
type Handler func(ctx context.Context, o Observation)

// Bus fans observations out to the current subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	scope   Scope
	handler Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	id   int
	once sync.Once
}

// Subscribe registers h for observations matching scope.
func (b *Bus) Subscribe(scope Scope, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = subscriber{scope: scope, handler: h}
	return &Subscription{bus: b, id: b.nextID}
}

// Release removes the subscription. After Release returns no new
// observation reaches the handler. Calling it again is a no-op.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// Publish delivers o to every matching subscriber and returns how many
// received it.
func (b *Bus) Publish(ctx context.Context, o Observation) int {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.scope == ScopeAll || (s.scope == ScopeNavigation && o.IsNavigation()) {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(ctx, o)
	}
	return len(targets)
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
