package pulsebus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
	pberrors "github.com/cityloop/pulsebus/pkg/pulsebus/errors"
)

// Subscription is the handle returned by Subscribe. Unsubscribing does
// not disturb dispatch units that already captured a snapshot including
// this handler.
type Subscription struct {
	id       uint64
	variants []event.Variant // nil means wildcard
	handler  event.Handler
	name     string

	retry   pberrors.RetryConfig
	timeout time.Duration

	paused atomic.Bool
	broker *Broker
}

// Name returns the subscription's handler name.
func (s *Subscription) Name() string { return s.name }

// Unsubscribe removes the handler from the registry.
func (s *Subscription) Unsubscribe() {
	s.broker.registry.remove(s)
}

// Pause temporarily stops delivery to this handler.
func (s *Subscription) Pause() { s.paused.Store(true) }

// Resume continues delivery after Pause.
func (s *Subscription) Resume() { s.paused.Store(false) }

// IsPaused reports whether the subscription is paused.
func (s *Subscription) IsPaused() bool { return s.paused.Load() }

// subscriberSet is an immutable snapshot of all registrations. Lookups
// during dispatch read the current snapshot without locking; writers
// build a fresh set and swap it in.
type subscriberSet struct {
	byVariant map[event.Variant][]*Subscription
	wildcards []*Subscription
}

var emptySet = &subscriberSet{byVariant: map[event.Variant][]*Subscription{}}

// registry is the copy-on-write subscription registry.
type registry struct {
	mu  sync.Mutex // serializes writers only
	set atomic.Pointer[subscriberSet]
}

func newRegistry() *registry {
	r := &registry{}
	r.set.Store(emptySet)
	return r
}

// resolve returns the exact-variant handlers unioned with wildcard
// handlers as of call time. The result is never mutated afterwards.
func (r *registry) resolve(v event.Variant) []*Subscription {
	set := r.set.Load()
	exact := set.byVariant[v]
	if len(set.wildcards) == 0 {
		return exact
	}
	subs := make([]*Subscription, 0, len(exact)+len(set.wildcards))
	subs = append(subs, exact...)
	subs = append(subs, set.wildcards...)
	return subs
}

func (r *registry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.set.Load()
	next := &subscriberSet{
		byVariant: make(map[event.Variant][]*Subscription, len(old.byVariant)),
		wildcards: old.wildcards,
	}
	for v, subs := range old.byVariant {
		next.byVariant[v] = subs
	}

	if sub.variants == nil {
		next.wildcards = appendCopy(old.wildcards, sub)
	} else {
		for _, v := range sub.variants {
			next.byVariant[v] = appendCopy(next.byVariant[v], sub)
		}
	}

	r.set.Store(next)
}

func (r *registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.set.Load()
	next := &subscriberSet{
		byVariant: make(map[event.Variant][]*Subscription, len(old.byVariant)),
		wildcards: without(old.wildcards, sub.id),
	}
	for v, subs := range old.byVariant {
		if filtered := without(subs, sub.id); len(filtered) > 0 {
			next.byVariant[v] = filtered
		}
	}

	r.set.Store(next)
}

// count returns the total number of registrations.
func (r *registry) count() int {
	set := r.set.Load()
	seen := make(map[uint64]struct{})
	for _, subs := range set.byVariant {
		for _, s := range subs {
			seen[s.id] = struct{}{}
		}
	}
	for _, s := range set.wildcards {
		seen[s.id] = struct{}{}
	}
	return len(seen)
}

// appendCopy appends without mutating the shared backing array.
func appendCopy(subs []*Subscription, sub *Subscription) []*Subscription {
	next := make([]*Subscription, 0, len(subs)+1)
	next = append(next, subs...)
	return append(next, sub)
}

func without(subs []*Subscription, id uint64) []*Subscription {
	var next []*Subscription
	for _, s := range subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	return next
}
