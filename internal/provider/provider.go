// Package provider implements the DatabaseProvider: the single object
// that owns the SubscriptionPool shared by every Watch, produces a
// Database instance per group on demand, and tracks the path→group
// registry new watches are resolved against.
package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/bus"
	"github.com/ilovepumpkin/dsa-historian/internal/database"
	"github.com/ilovepumpkin/dsa-historian/internal/pool"
	"github.com/ilovepumpkin/dsa-historian/internal/watch"
	"github.com/ilovepumpkin/dsa-historian/internal/watchgroup"
)

// Factory produces a fresh Database for a newly created group. Kept
// as a function so different backends (Postgres, SQLite) can be
// selected by configuration without the provider importing either
// driver directly.
type Factory func(groupID string) (database.Database, error)

// Provider owns the SubscriptionPool shared across all groups it
// creates and outlives every group it produces, per §4.F.
type Provider struct {
	Pool *pool.Pool

	newDatabase Factory

	// registry maps decoded watch path -> owning group ID, giving
	// onWatchAdded-style lookups a cheap, TTL-bounded cache instead of
	// holding a lock over the full group map on every hit. Grounded on
	// the teacher's own InitMemcache pattern: a short default
	// expiration with a longer cleanup interval for seldom-queried
	// entries.
	registry *cache.Cache

	mu     sync.RWMutex
	groups map[string]*watchgroup.WatchGroup
}

// New constructs a Provider fronting bus through a fresh
// SubscriptionPool, using newDatabase to produce a Database instance
// per group it creates.
func New(b bus.Bus, newDatabase Factory) *Provider {
	return &Provider{
		Pool:        pool.New(b),
		newDatabase: newDatabase,
		registry:    cache.New(10*time.Minute, 15*time.Minute),
		groups:      make(map[string]*watchgroup.WatchGroup),
	}
}

// CreateGroup constructs a new WatchGroup with a fresh Database
// instance and registers it under id. Returns an error if id is
// already in use or the backing database fails to open.
func (p *Provider) CreateGroup(id string) (*watchgroup.WatchGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.groups[id]; exists {
		return nil, fmt.Errorf("provider: group %q already exists", id)
	}

	db, err := p.newDatabase(id)
	if err != nil {
		return nil, fmt.Errorf("provider: open database for group %q: %w", id, err)
	}

	g := watchgroup.New(id, p.Pool, db)
	p.groups[id] = g
	return g, nil
}

// Group looks up a previously created group by ID.
func (p *Provider) Group(id string) (*watchgroup.WatchGroup, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := p.groups[id]
	return g, ok
}

// Groups returns a snapshot of every group this provider owns.
func (p *Provider) Groups() []*watchgroup.WatchGroup {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*watchgroup.WatchGroup, 0, len(p.groups))
	for _, g := range p.groups {
		out = append(out, g)
	}
	return out
}

// DeleteGroup unsubscribes and removes the group from the provider,
// closing its tasks and database connection.
func (p *Provider) DeleteGroup(id string) error {
	p.mu.Lock()
	g, ok := p.groups[id]
	if ok {
		delete(p.groups, id)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("provider: group %q not found", id)
	}

	g.Unsubscribe()
	g.Close()
	return nil
}

// AddWatch adds a watch for rawPath to the named group and records it
// in the provider's path registry via OnWatchAdded.
func (p *Provider) AddWatch(groupID, rawPath string) (*watch.Watch, error) {
	g, ok := p.Group(groupID)
	if !ok {
		return nil, fmt.Errorf("provider: group %q not found", groupID)
	}
	w := g.AddWatchPath(rawPath)
	p.OnWatchAdded(groupID, w)
	return w, nil
}

// OnWatchAdded implements §4.F's provider-level indexing hook: records
// which group a watch's path belongs to, so ResolveGroupForPath can
// answer without scanning every group's membership.
func (p *Provider) OnWatchAdded(groupID string, w *watch.Watch) {
	p.registry.SetDefault(w.Path, groupID)
	zap.S().Debugw("provider: watch added", "group", groupID, "path", w.Path, "watch_id", w.ID)
}

// ResolveGroupForPath returns the group ID registered for path by the
// most recent OnWatchAdded call, if any.
func (p *Provider) ResolveGroupForPath(path string) (string, bool) {
	v, ok := p.registry.Get(path)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Shutdown closes every owned group's database connection. The
// provider itself has no further resources to release — it outlives
// every group it produced, but does not outlive the process.
func (p *Provider) Shutdown() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, g := range p.groups {
		g.Close()
	}
}
