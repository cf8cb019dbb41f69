// Package coordinator owns the in-memory table of execution records and the
// live sessions behind each running execution.
//
// Records move from running to exactly one terminal status. A cancelled
// record stays cancelled: a result that arrives afterwards is attached
// without changing the status. Memory is bounded by a single sweep that
// evicts terminal records by age and by count, and drops active entries
// that outlive a hard ceiling. Records whose execution is still running are
// never evicted.
package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vijaygupta18/multidb/internal/model"
)

// Default limits used when a Config field is left zero.
const (
	DefaultMaxRecords       = 1000
	DefaultMaxAge           = time.Hour
	DefaultSweepInterval    = time.Minute
	DefaultLeakCeiling      = 30 * time.Minute
	DefaultInterruptTimeout = 5 * time.Second
)

// Config bounds the coordinator's memory and cancel behaviour.
type Config struct {
	// MaxRecords caps the number of records kept. Begin evicts the oldest
	// finished records once the cap is exceeded.
	MaxRecords int
	// MaxAge is how long a finished record stays visible.
	MaxAge time.Duration
	// SweepInterval is the period of the background sweep started by Run.
	SweepInterval time.Duration
	// LeakCeiling is the longest an execution may hold live sessions before
	// its active entry is dropped as leaked.
	LeakCeiling time.Duration
	// InterruptTimeout bounds each server-side cancel sent by Cancel.
	InterruptTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.LeakCeiling <= 0 {
		c.LeakCeiling = DefaultLeakCeiling
	}
	if c.InterruptTimeout <= 0 {
		c.InterruptTimeout = DefaultInterruptTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CancelFlag is shared by every target task of one execution. Tasks check it
// before each statement.
type CancelFlag struct {
	set atomic.Bool
}

// Cancelled reports whether the execution has been cancelled.
func (f *CancelFlag) Cancelled() bool { return f.set.Load() }

// session is one live connection of a running execution.
type session struct {
	pid       uint32
	interrupt func(context.Context) error
}

// activeEntry holds the live resources of one execution. A target maps to a
// nil session between Reserve and Track.
type activeEntry struct {
	ownerID  string
	start    time.Time
	flag     *CancelFlag
	targets  map[model.TargetName]*session
	progress map[model.TargetName]int
}

// Coordinator is safe for concurrent use. All state sits behind one mutex;
// each method is a single critical section and never performs I/O while
// holding it.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*model.ExecutionRecord
	active  map[string]*activeEntry

	interrupts sync.WaitGroup
}

// New creates a coordinator. Zero fields in cfg take the package defaults.
func New(cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		records: make(map[string]*model.ExecutionRecord),
		active:  make(map[string]*activeEntry),
	}
}

// Begin creates a running record owned by ownerID and returns its id with
// the cancel flag its target tasks must observe. It enforces the record cap.
func (c *Coordinator) Begin(ownerID string) (string, *CancelFlag) {
	id := model.NewID()
	flag := &CancelFlag{}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now().UTC()
	c.records[id] = &model.ExecutionRecord{
		ID:        id,
		OwnerID:   ownerID,
		Status:    model.StatusRunning,
		StartTime: now,
	}
	c.active[id] = &activeEntry{
		ownerID:  ownerID,
		start:    now,
		flag:     flag,
		targets:  make(map[model.TargetName]*session),
		progress: make(map[model.TargetName]int),
	}
	executionsStartedTotal.Inc()

	c.sweepLocked(now, true)
	c.updateGaugesLocked()
	return id, flag
}

// Reserve marks names as in use by execution id before their sessions are
// acquired, so the active entry outlives targets that finish early.
func (c *Coordinator) Reserve(id string, names []model.TargetName) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.active[id]
	if !ok {
		return
	}
	for _, n := range names {
		if _, exists := a.targets[n]; !exists {
			a.targets[n] = nil
		}
	}
}

// Track registers the live session of target for execution id. interrupt
// asks the server to abort whatever the session is running.
func (c *Coordinator) Track(id string, target model.TargetName, pid uint32, interrupt func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.active[id]
	if !ok {
		return
	}
	a.targets[target] = &session{pid: pid, interrupt: interrupt}
}

// Untrack removes target from execution id's active entry. Removing the
// last target removes the entry.
func (c *Coordinator) Untrack(id string, target model.TargetName) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.active[id]
	if !ok {
		return
	}
	delete(a.targets, target)
	if len(a.targets) == 0 {
		delete(c.active, id)
		c.updateGaugesLocked()
	}
}

// RecordProgress updates the progress of execution id. Unknown ids are
// ignored, as are reports that would move a target's index backwards.
func (c *Coordinator) RecordProgress(id string, target model.TargetName, current, total int, statement string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return
	}
	if a, ok := c.active[id]; ok {
		if current < a.progress[target] {
			return
		}
		a.progress[target] = current
	}
	rec.Progress = model.Progress{
		Current:   current,
		Total:     total,
		Statement: statement,
		Target:    target,
	}
}

// AttachResult finishes execution id as completed or failed according to
// succeeded. A cancelled record keeps its status and only gains the result
// and end time.
func (c *Coordinator) AttachResult(id string, resp *model.Response, succeeded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		c.logger.Warn("result for unknown execution dropped", "execution_id", id)
		return
	}
	next := model.StatusFailed
	if succeeded {
		next = model.StatusCompleted
	}

	switch {
	case c.transitionLocked(rec, next):
		rec.Result = resp
	case rec.Status == model.StatusCancelled:
		now := c.cfg.Now().UTC()
		rec.Result = resp
		rec.EndTime = &now
	default:
		c.logger.Warn("result for finished execution dropped", "execution_id", id, "status", rec.Status)
	}

	delete(c.active, id)
	c.updateGaugesLocked()
}

// Fail finishes execution id as failed with msg unless it was cancelled.
func (c *Coordinator) Fail(id, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return
	}
	if c.transitionLocked(rec, model.StatusFailed) {
		rec.Error = msg
	}

	delete(c.active, id)
	c.updateGaugesLocked()
}

// transitionLocked moves rec to next when model.ValidTransition allows it and
// stamps the end time.
func (c *Coordinator) transitionLocked(rec *model.ExecutionRecord, next string) bool {
	if !model.ValidTransition(rec.Status, next) {
		return false
	}
	now := c.cfg.Now().UTC()
	rec.Status = next
	rec.EndTime = &now
	transitionsTotal.WithLabelValues(next).Inc()
	return true
}

// Cancel stops execution id. It returns false when the execution holds no
// live resources, meaning it already finished or never existed; the stored
// record is left alone in that case. Otherwise the shared flag is set, the
// record becomes cancelled and every tracked session is interrupted on its
// own goroutine.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()

	a, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	a.flag.set.Store(true)

	if rec, ok := c.records[id]; ok {
		c.transitionLocked(rec, model.StatusCancelled)
	}

	type pending struct {
		target    model.TargetName
		pid       uint32
		interrupt func(context.Context) error
	}
	var todo []pending
	for name, s := range a.targets {
		if s != nil && s.interrupt != nil {
			todo = append(todo, pending{target: name, pid: s.pid, interrupt: s.interrupt})
		}
	}
	c.mu.Unlock()

	c.logger.Info("execution cancelled", "execution_id", id, "sessions", len(todo))

	for _, p := range todo {
		c.interrupts.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.InterruptTimeout)
			defer cancel()

			if err := p.interrupt(ctx); err != nil {
				interruptsTotal.WithLabelValues(outcomeError).Inc()
				c.logger.Warn("interrupt running statement failed",
					"execution_id", id, "target", p.target, "pid", p.pid, "error", err)
				return
			}
			interruptsTotal.WithLabelValues(outcomeSuccess).Inc()
		})
	}
	return true
}

// Status returns a snapshot of execution id's record.
func (c *Coordinator) Status(id string) (model.ExecutionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return model.ExecutionRecord{}, false
	}
	snap := *rec
	if rec.EndTime != nil {
		end := *rec.EndTime
		snap.EndTime = &end
	}
	return snap, true
}

// Owner returns the id of the user that started execution id.
func (c *Coordinator) Owner(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return "", false
	}
	return rec.OwnerID, true
}

// ListActive returns the executions that still hold live resources, oldest
// first.
func (c *Coordinator) ListActive() []model.ActiveExecution {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now().UTC()
	out := make([]model.ActiveExecution, 0, len(c.active))
	for id, a := range c.active {
		out = append(out, model.ActiveExecution{
			ID:        id,
			OwnerID:   a.ownerID,
			StartTime: a.start,
			ElapsedMS: now.Sub(a.start).Milliseconds(),
			Targets:   len(a.targets),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Sweep runs one full eviction pass and returns the number of records
// removed.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.sweepLocked(c.cfg.Now().UTC(), false)
	c.updateGaugesLocked()
	return n
}

// Run sweeps every SweepInterval until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept execution records", "evicted", n)
			}
		}
	}
}

// Wait blocks until every interrupt started by Cancel has returned.
func (c *Coordinator) Wait() {
	c.interrupts.Wait()
}

// sweepLocked is the only eviction path. With capOnly set it enforces just
// the record cap; otherwise it also applies the age limit and the leak
// ceiling. A record is evictable only when it is terminal and no longer has
// an active entry.
func (c *Coordinator) sweepLocked(now time.Time, capOnly bool) int {
	evicted := 0
	evictable := func(id string, rec *model.ExecutionRecord) bool {
		if !model.IsTerminal(rec.Status) || rec.EndTime == nil {
			return false
		}
		_, live := c.active[id]
		return !live
	}

	if !capOnly {
		for id, rec := range c.records {
			if evictable(id, rec) && now.Sub(*rec.EndTime) > c.cfg.MaxAge {
				delete(c.records, id)
				evictionsTotal.WithLabelValues(reasonAge).Inc()
				evicted++
			}
		}
	}

	if over := len(c.records) - c.cfg.MaxRecords; over > 0 {
		candidates := make([]*model.ExecutionRecord, 0, len(c.records))
		for id, rec := range c.records {
			if evictable(id, rec) {
				candidates = append(candidates, rec)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			ei, ej := *candidates[i].EndTime, *candidates[j].EndTime
			if ei.Equal(ej) {
				return candidates[i].StartTime.Before(candidates[j].StartTime)
			}
			return ei.Before(ej)
		})
		for _, rec := range candidates {
			if over == 0 {
				break
			}
			delete(c.records, rec.ID)
			evictionsTotal.WithLabelValues(reasonCapacity).Inc()
			evicted++
			over--
		}
		if over > 0 {
			c.logger.Warn("record cap exceeded by running executions", "records", len(c.records), "cap", c.cfg.MaxRecords)
		}
	}

	if !capOnly {
		for id, a := range c.active {
			if now.Sub(a.start) > c.cfg.LeakCeiling {
				delete(c.active, id)
				leakedTotal.Inc()
				c.logger.Warn("dropping leaked active execution",
					"execution_id", id, "running_for", now.Sub(a.start).String(), "targets", len(a.targets))
			}
		}
	}

	return evicted
}

func (c *Coordinator) updateGaugesLocked() {
	recordsGauge.Set(float64(len(c.records)))
	activeGauge.Set(float64(len(c.active)))
}
