// Package watch implements the per-path ingestion sink: a Watch holds
// the last-seen and last-written markers for one subscribed path,
// fans real-time notifications out to listeners, and feeds its owning
// WatchGroup according to that group's logging policy.
package watch

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ilovepumpkin/dsa-historian/internal/pathcodec"
	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

// Pool is the subset of SubscriptionPool behavior a Watch needs: it
// never sees the rest of the pool's bookkeeping, only its own
// subscribe/unsubscribe lifecycle. Defined here (not in package pool)
// so watch has no import-time dependency on pool's internals.
type Pool interface {
	Subscribe(path string, w *Watch) error
	Unsubscribe(path string, w *Watch) error
}

// Group is the subset of WatchGroup behavior a Watch calls into. A
// Watch never reaches into a group's queue or settings directly.
type Group interface {
	// CanWriteOnNewData reports whether the group's current logging
	// policy allows writing as soon as new data arrives (true for
	// everything except INTERVAL).
	CanWriteOnNewData() bool
	// Write hands a freshly observed update to the group's policy
	// engine.
	Write(w *Watch, update value.SubscriptionUpdate)
	// RemoveWatch detaches w from the group's membership list.
	RemoveWatch(w *Watch)
}

// Handler receives a notification every time the group successfully
// writes a value observed by this Watch.
type Handler interface {
	Handle(QueryData)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(QueryData)

func (f HandlerFunc) Handle(d QueryData) { f(d) }

// QueryData is what real-time handlers receive: the value that was
// just written and the timestamp it was written under.
type QueryData struct {
	Value  value.Value
	TimeMs int64
}

// Watch is one subscription sink bound to one decoded bus path.
type Watch struct {
	ID    uuid.UUID
	Path  string // decoded path, %2F/%2E already resolved
	pool  Pool
	group Group

	mu              sync.Mutex
	enabled         bool
	lastValue       *value.Value // nil means "never observed"
	lastWatchUpdate *WatchUpdate // pending interval-mode sample
	lastWrittenValue value.Value
	lastWrittenTime int64
	startDate       int64 // 0 until first write
	startDateSet    bool
	endDate         int64

	rtMu       sync.RWMutex
	rtHandlers []*handlerEntry
}

// handlerEntry wraps a registered Handler so removal can identify it by
// pointer rather than by comparing the Handler interface values
// themselves: a HandlerFunc's dynamic type is a func, which the Go spec
// makes non-comparable, so `==` on two such interface values panics at
// run time.
type handlerEntry struct {
	h Handler
}

// New constructs a Watch for rawPath (escape-decoded exactly once
// here) belonging to group, and registers it with pool if enabled is
// true.
func New(rawPath string, group Group, pool Pool, enabled bool) *Watch {
	if group == nil {
		panic("watch: nil group")
	}
	w := &Watch{
		ID:      uuid.New(),
		Path:    pathcodec.Decode(rawPath),
		pool:    pool,
		group:   group,
		enabled: enabled,
	}
	if enabled {
		_ = pool.Subscribe(w.Path, w)
	}
	return w
}

func (w *Watch) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// Enable toggles pool subscription for this watch. Idempotent:
// enabling an already-enabled watch (or disabling an already-disabled
// one) is a no-op beyond the state flip.
func (w *Watch) Enable(enabled bool) error {
	w.mu.Lock()
	changed := w.enabled != enabled
	w.enabled = enabled
	w.mu.Unlock()

	if !changed {
		return nil
	}
	if enabled {
		return w.pool.Subscribe(w.Path, w)
	}
	return w.pool.Unsubscribe(w.Path, w)
}

// OnData is called by the pool for every update delivered on this
// watch's path.
func (w *Watch) OnData(update value.SubscriptionUpdate) {
	if w.group.CanWriteOnNewData() {
		w.group.Write(w, update)
		return
	}
	w.mu.Lock()
	w.lastWatchUpdate = &WatchUpdate{Watch: w, Update: update}
	w.mu.Unlock()
}

// LastWatchUpdate returns the watch's persistent last-observed update
// for interval sampling, or nil if nothing has arrived yet. It is
// overwritten only by OnData — the sampler reads it on every tick
// without consuming it, so a single delivery followed by silence keeps
// producing the same value on every subsequent tick.
func (w *Watch) LastWatchUpdate() *WatchUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastWatchUpdate
}

// LastValue returns the most recently observed value (for POINT_CHANGE
// comparison), or nil if none has been observed yet.
func (w *Watch) LastValue() *value.Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastValue
}

// SetLastValue records the value POINT_CHANGE should compare future
// updates against.
func (w *Watch) SetLastValue(v value.Value) {
	w.mu.Lock()
	w.lastValue = &v
	w.mu.Unlock()
}

// HandleLastWritten is called by the group after a successful
// database write: records the written value, sets endDate to the
// value's timestamp, and sets startDate only the first time this is
// ever called for this watch.
func (w *Watch) HandleLastWritten(v value.Value) {
	if v.IsNull() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastWrittenValue = v
	ts := v.Timestamp()
	if !w.startDateSet {
		w.startDate = ts
		w.startDateSet = true
	}
	w.endDate = ts
	w.lastWrittenTime = ts
}

// StartDate, EndDate, LastWrittenValue, LastWrittenTime report the
// UI-facing bookkeeping state for presentation surfaces (§6).
func (w *Watch) StartDate() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startDate, w.startDateSet
}

func (w *Watch) EndDate() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endDate
}

func (w *Watch) LastWrittenValue() value.Value {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastWrittenValue
}

func (w *Watch) LastWrittenTime() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastWrittenTime
}

// AddHandler registers a real-time listener and returns a function
// that removes it again. Handlers are notified after every database
// write this watch's group performs on its behalf.
func (w *Watch) AddHandler(h Handler) (remove func()) {
	if h == nil {
		return func() {}
	}
	entry := &handlerEntry{h: h}
	w.rtMu.Lock()
	w.rtHandlers = append(w.rtHandlers, entry)
	w.rtMu.Unlock()
	return func() { w.removeHandler(entry) }
}

func (w *Watch) removeHandler(entry *handlerEntry) {
	w.rtMu.Lock()
	defer w.rtMu.Unlock()
	for i, existing := range w.rtHandlers {
		if existing == entry {
			w.rtHandlers = append(w.rtHandlers[:i], w.rtHandlers[i+1:]...)
			return
		}
	}
}

// NotifyHandlers fans data out to every registered handler. The
// handler list is copied under the read lock and invoked outside of
// it, so a handler that calls AddHandler/removeHandler re-entrantly
// cannot deadlock against this call; a panicking handler is recovered
// and logged rather than aborting the fan-out for the rest.
func (w *Watch) NotifyHandlers(data QueryData) {
	w.rtMu.RLock()
	entries := make([]*handlerEntry, len(w.rtHandlers))
	copy(entries, w.rtHandlers)
	w.rtMu.RUnlock()

	for _, entry := range entries {
		notifyOne(entry.h, data)
	}
}

func notifyOne(h Handler, data QueryData) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(h, r)
		}
	}()
	h.Handle(data)
}

// Unsubscribe detaches this watch from its group and pool.
func (w *Watch) Unsubscribe() error {
	w.group.RemoveWatch(w)
	return w.pool.Unsubscribe(w.Path, w)
}
