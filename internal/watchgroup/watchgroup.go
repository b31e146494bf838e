// Package watchgroup implements the WatchGroup policy engine: the
// concurrent pipeline that accepts subscription updates from its
// member Watches, applies a logging policy, buffers them, and flushes
// them to a Database under two independently schedulable tickers
// while allowing live, atomic reconfiguration.
package watchgroup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/database"
	"github.com/ilovepumpkin/dsa-historian/internal/value"
	"github.com/ilovepumpkin/dsa-historian/internal/watch"
)

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dsahistorian_watchgroup_queue_depth",
		Help: "Number of WatchUpdates currently queued awaiting a buffer flush.",
	}, []string{"group"})
	writeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dsahistorian_watchgroup_write_seconds",
		Help:    "Latency of a single Database.Write call issued by a WatchGroup.",
		Buckets: prometheus.DefBuckets,
	}, []string{"group"})
	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsahistorian_watchgroup_rows_written_total",
		Help: "Total rows written to the database by a WatchGroup.",
	}, []string{"group"})
)

// Pool is the subset of SubscriptionPool a WatchGroup needs in order
// to construct its own Watches.
type Pool interface {
	Subscribe(path string, w *watch.Watch) error
	Unsubscribe(path string, w *watch.Watch) error
}

// WatchGroup is a policy engine owning a set of Watches, a pluggable
// Database, a FIFO queue, and two independently cancellable tickers.
// It implements watch.Group.
type WatchGroup struct {
	ID   string
	pool Pool
	db   database.Database

	settings atomic.Pointer[Settings]

	// writeLoopLock serializes reconfiguration of both scheduled tasks
	// (buffer flush and interval sampling) against concurrent control-
	// plane calls — EditSettings, Unsubscribe, Close — so two racing
	// calls (e.g. a PATCH racing a DELETE on the same group from the
	// HTTP surface) can't both read flushCancel/intervalCancel at once
	// or drop a cancellation.
	writeLoopLock sync.Mutex

	q *queue

	watchesMu sync.RWMutex
	watches   map[*watch.Watch]struct{}

	flushCancel    context.CancelFunc
	intervalCancel context.CancelFunc

	closed atomic.Bool
}

// New constructs a WatchGroup with the default policy (ALL_DATA, 5s
// buffer flush, 5s interval) and starts whichever scheduled tasks that
// policy requires, matching subscribe()/initSettings() in §4.D's state
// machine.
func New(id string, pool Pool, db database.Database) *WatchGroup {
	if db == nil {
		panic("watchgroup: nil database")
	}
	g := &WatchGroup{
		ID:      id,
		pool:    pool,
		db:      db,
		q:       newQueue(),
		watches: make(map[*watch.Watch]struct{}),
	}
	g.settings.Store(ptr(DefaultSettings()))
	g.startTasks(g.currentSettings())
	return g
}

func ptr[T any](v T) *T { return &v }

func (g *WatchGroup) currentSettings() Settings {
	return *g.settings.Load()
}

// AddWatchPath adds a Watch for rawPath, enabled by default, and
// registers it both with the pool and with this group's membership.
func (g *WatchGroup) AddWatchPath(rawPath string) *watch.Watch {
	w := watch.New(rawPath, g, g.pool, true)
	g.watchesMu.Lock()
	g.watches[w] = struct{}{}
	g.watchesMu.Unlock()
	return w
}

// Watches returns a snapshot of the group's current member watches.
func (g *WatchGroup) Watches() []*watch.Watch {
	g.watchesMu.RLock()
	defer g.watchesMu.RUnlock()
	out := make([]*watch.Watch, 0, len(g.watches))
	for w := range g.watches {
		out = append(out, w)
	}
	return out
}

// FindWatch looks up a member watch by its UUID string.
func (g *WatchGroup) FindWatch(id string) (*watch.Watch, bool) {
	g.watchesMu.RLock()
	defer g.watchesMu.RUnlock()
	for w := range g.watches {
		if w.ID.String() == id {
			return w, true
		}
	}
	return nil, false
}

// RemoveWatch implements watch.Group: detaches w from membership. It
// does not unsubscribe w from the pool — Watch.Unsubscribe does that
// itself after calling this.
func (g *WatchGroup) RemoveWatch(w *watch.Watch) {
	g.watchesMu.Lock()
	delete(g.watches, w)
	g.watchesMu.Unlock()
}

// CanWriteOnNewData implements watch.Group.
func (g *WatchGroup) CanWriteOnNewData() bool {
	return g.currentSettings().CanWriteOnNewData()
}

// Write implements watch.Group: the policy engine's decision point for
// every update a member Watch observes outside of interval sampling.
func (g *WatchGroup) Write(w *watch.Watch, update value.SubscriptionUpdate) {
	settings := g.currentSettings()

	switch settings.LoggingType {
	case PointChange:
		prev := w.LastValue()
		if !value.Changed(prev, &update.Value) {
			return
		}
		w.SetLastValue(update.Value)
	case Interval:
		// write() never persists directly in INTERVAL mode; the
		// caller (Watch.OnData) only reaches here when
		// CanWriteOnNewData is true, so this branch is unreachable
		// in practice, but is kept explicit for clarity and safety
		// against future callers.
		return
	}

	wu := &watch.WatchUpdate{Watch: w, Update: update}
	g.enqueueOrWrite(wu, settings)
}

// enqueueOrWrite implements the decision at §4.D: if a buffer flush
// task is active, enqueue and return; otherwise drain any residual
// queue first (preserving FIFO order across a policy toggle) and
// write directly. settings is the caller's snapshot, so one decision
// or one sampler tick applies a single set of parameters throughout.
func (g *WatchGroup) enqueueOrWrite(wu *watch.WatchUpdate, settings Settings) {
	if settings.BuffersEnabled() {
		g.q.enqueue(wu)
		queueDepth.WithLabelValues(g.ID).Set(float64(g.q.len()))
		return
	}

	pending := g.q.drainAll()
	for _, p := range pending {
		g.writeOne(p)
	}
	queueDepth.WithLabelValues(g.ID).Set(0)
	g.writeOne(wu)
}

// writeOne performs the timestamp policy (§4.D), discards null
// values, issues the database write, and updates the watch's
// last-written bookkeeping plus real-time fan-out.
func (g *WatchGroup) writeOne(wu *watch.WatchUpdate) {
	if wu.Update.Value.IsNull() {
		return
	}

	// The timestamp policy of §4.D ("intervalTimestamp if INTERVAL,
	// else value.timestamp") is already resolved by the time a
	// WatchUpdate reaches here: runIntervalTick stamps the value with
	// the tick time before enqueuing it, so the value's own timestamp
	// is always the correct row timestamp at this point.
	ts := wu.Update.Value.Timestamp()
	start := time.Now()
	err := g.db.Write(context.Background(), wu.Update.Path, wu.Update.Value, ts)
	writeLatency.WithLabelValues(g.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		zap.S().Errorw("watchgroup: database write failed", "group", g.ID, "path", wu.Update.Path, "error", err)
		return
	}
	rowsWritten.WithLabelValues(g.ID).Inc()

	written := wu.Update.Value.WithTimestamp(ts)
	wu.Watch.HandleLastWritten(written)
	wu.Watch.NotifyHandlers(watch.QueryData{Value: written, TimeMs: ts})
}

// writeBatchTail writes every item in batch in order and, per §4.D's
// explicit (if source-biased) rule, calls handleLastWritten only on
// the final entry's watch — the batch tail represents the group's
// most recently visible state, not every intermediate row. Documented
// in DESIGN.md's Open Question decisions.
func (g *WatchGroup) writeBatchTail(batch []*watch.WatchUpdate) {
	if len(batch) == 0 {
		return
	}
	for i, wu := range batch {
		if wu.Update.Value.IsNull() {
			continue
		}
		ts := wu.Update.Value.Timestamp()
		start := time.Now()
		err := g.db.Write(context.Background(), wu.Update.Path, wu.Update.Value, ts)
		writeLatency.WithLabelValues(g.ID).Observe(time.Since(start).Seconds())
		if err != nil {
			zap.S().Errorw("watchgroup: batch write failed", "group", g.ID, "path", wu.Update.Path, "error", err)
			continue
		}
		rowsWritten.WithLabelValues(g.ID).Inc()

		written := wu.Update.Value.WithTimestamp(ts)
		wu.Watch.NotifyHandlers(watch.QueryData{Value: written, TimeMs: ts})
		if i == len(batch)-1 {
			wu.Watch.HandleLastWritten(written)
		}
	}
}

// startTasks arms whichever tickers settings requires, matching
// subscribe()/initSettings(). Called at construction and whenever
// editSettings restarts tasks.
func (g *WatchGroup) startTasks(settings Settings) {
	if settings.BuffersEnabled() {
		g.startFlushTask(settings)
	}
	if settings.SamplingEnabled() {
		g.startIntervalTask(settings)
	}
}

func (g *WatchGroup) startFlushTask(settings Settings) {
	ctx, cancel := context.WithCancel(context.Background())
	g.flushCancel = cancel
	ticker := time.NewTicker(time.Duration(settings.BufferFlushSeconds) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.runFlushTick()
			}
		}
	}()
}

func (g *WatchGroup) startIntervalTask(settings Settings) {
	ctx, cancel := context.WithCancel(context.Background())
	g.intervalCancel = cancel
	ticker := time.NewTicker(time.Duration(settings.IntervalSeconds) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.runIntervalTick()
			}
		}
	}()
}

// runFlushTick implements §4.D's buffer-flush tick: read the queue
// size once, poll exactly that many entries, write them, and call
// handleLastWritten only on the final entry.
func (g *WatchGroup) runFlushTick() {
	n := g.q.len()
	if n == 0 {
		return
	}
	batch := g.q.drainN(n)
	queueDepth.WithLabelValues(g.ID).Set(float64(g.q.len()))
	g.writeBatchTail(batch)
}

// runIntervalTick implements §4.D's interval sampler: one shared
// wall-clock timestamp for the whole tick (collapsing the source's
// per-enqueue jitter, per §9's resolved ambiguity), enqueuing one
// WatchUpdate per enabled watch whose lastWatchUpdate is non-nil. The
// sampler never writes directly.
//
// lastWatchUpdate is never cleared here: it is the watch's persistent
// last-observed value, re-emitted on every tick until OnData overwrites
// it with something newer. A single bus delivery followed by silence
// must keep producing one row per tick, not just the first.
func (g *WatchGroup) runIntervalTick() {
	tick := time.Now().UnixMilli()
	settings := g.currentSettings()
	for _, w := range g.Watches() {
		if !w.Enabled() {
			continue
		}
		pending := w.LastWatchUpdate()
		if pending == nil {
			continue
		}

		update := pending.Update
		update.Value = update.Value.WithTimestamp(tick)
		// Route through enqueueOrWrite rather than a bare enqueue: a
		// group with no buffer flush task must still drain (and in
		// this case, immediately write) what the sampler produces —
		// the same flush-before-bypass rule write() applies to
		// directly observed updates.
		g.enqueueOrWrite(&watch.WatchUpdate{Watch: w, Update: update}, settings)
	}
}

// EditSettings applies new policy parameters atomically: cancels both
// scheduled tasks, clamps the incoming parameters, swaps the settings
// snapshot, then restarts whichever tasks the new policy requires.
// The whole sequence runs under writeLoopLock so a concurrent
// EditSettings/Unsubscribe/Close on the same group can't interleave
// with this one and drop a cancellation or race the cancel func
// fields (§4.D/§5's serialized-reconfiguration requirement).
func (g *WatchGroup) EditSettings(next Settings) {
	next = next.Normalize()

	g.writeLoopLock.Lock()
	defer g.writeLoopLock.Unlock()

	g.cancelIntervalTask()
	g.cancelFlushTask()
	g.settings.Store(ptr(next))
	if next.BuffersEnabled() {
		g.startFlushTask(next)
	}
	if next.SamplingEnabled() {
		g.startIntervalTask(next)
	}
}

func (g *WatchGroup) cancelFlushTask() {
	if g.flushCancel != nil {
		g.flushCancel()
		g.flushCancel = nil
	}
}

func (g *WatchGroup) cancelIntervalTask() {
	if g.intervalCancel != nil {
		g.intervalCancel()
		g.intervalCancel = nil
	}
}

// Unsubscribe implements §4.D's unsubscribe transition: cancel both
// tasks and clear the queue, discarding in-flight updates explicitly.
func (g *WatchGroup) Unsubscribe() {
	g.writeLoopLock.Lock()
	g.cancelIntervalTask()
	g.cancelFlushTask()
	g.writeLoopLock.Unlock()
	g.q.clear()
	queueDepth.WithLabelValues(g.ID).Set(0)
}

// Close implements §4.D's close transition: cancels both scheduled
// tasks, closes the group's database, and leaves the queue as-is for
// garbage collection. Only the first call has any effect.
func (g *WatchGroup) Close() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	g.writeLoopLock.Lock()
	g.cancelIntervalTask()
	g.cancelFlushTask()
	g.writeLoopLock.Unlock()
	if err := g.db.Close(); err != nil {
		zap.S().Errorw("watchgroup: closing database failed", "group", g.ID, "error", err)
	}
}

// Database returns the group's backing store, used by the HTTP
// history endpoint to run range queries without routing them through
// the write path.
func (g *WatchGroup) Database() database.Database {
	return g.db
}

// Settings returns the group's current policy snapshot.
func (g *WatchGroup) Settings() Settings {
	return g.currentSettings()
}

// QueueLen reports the number of updates currently buffered, for
// diagnostics and tests.
func (g *WatchGroup) QueueLen() int {
	return g.q.len()
}
