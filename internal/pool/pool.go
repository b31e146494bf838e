// Package pool implements the SubscriptionPool: a single multiplexing
// layer between the link bus and the many Watches that may care about
// the same path. One bus-level subscription is kept per path no
// matter how many Watches reference it, and torn down the instant the
// last interested Watch goes away.
package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/bus"
	"github.com/ilovepumpkin/dsa-historian/internal/value"
	"github.com/ilovepumpkin/dsa-historian/internal/watch"
)

// Pool multiplexes many *watch.Watch subscribers onto one underlying
// bus subscription per path. It implements watch.Pool.
type Pool struct {
	b bus.Bus

	mu   sync.Mutex
	subs map[string]map[*watch.Watch]struct{}
}

// New constructs a Pool fronting b.
func New(b bus.Bus) *Pool {
	return &Pool{
		b:    b,
		subs: make(map[string]map[*watch.Watch]struct{}),
	}
}

// Subscribe registers w against path, opening a bus-level subscription
// the first time any Watch asks for path and reusing it thereafter.
func (p *Pool) Subscribe(path string, w *watch.Watch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, exists := p.subs[path]
	if !exists {
		set = make(map[*watch.Watch]struct{})
		p.subs[path] = set
	}
	set[w] = struct{}{}

	if exists {
		return nil
	}

	if err := p.b.Subscribe(path, p.dispatch(path)); err != nil {
		delete(p.subs, path)
		return err
	}
	return nil
}

// Unsubscribe removes w from path's subscriber set, tearing down the
// bus-level subscription once that set is empty.
func (p *Pool) Unsubscribe(path string, w *watch.Watch) error {
	p.mu.Lock()
	set, ok := p.subs[path]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(set, w)
	last := len(set) == 0
	if last {
		delete(p.subs, path)
	}
	p.mu.Unlock()

	if !last {
		return nil
	}
	return p.b.Unsubscribe(path)
}

// SubscriberCount reports how many Watches currently share path's bus
// subscription, primarily for tests and diagnostics.
func (p *Pool) SubscriberCount(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[path])
}

// dispatch returns the bus.Handler installed for path: it fans one
// inbound update out to every Watch currently registered for that
// path, snapshotting the subscriber set first so a Watch that
// unsubscribes mid-fan-out doesn't race the iteration.
func (p *Pool) dispatch(path string) bus.Handler {
	return func(update value.SubscriptionUpdate) {
		p.mu.Lock()
		set := p.subs[path]
		watches := make([]*watch.Watch, 0, len(set))
		for w := range set {
			watches = append(watches, w)
		}
		p.mu.Unlock()

		for _, w := range watches {
			notifyOne(w, update)
		}
	}
}

func notifyOne(w *watch.Watch, update value.SubscriptionUpdate) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorw("recovered panic dispatching update to watch", "path", update.Path, "panic", r)
		}
	}()
	w.OnData(update)
}
