package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/store"
)

// Source is the OS simulator backend as seen by the poller.
type Source interface {
	Visualize(ctx context.Context) (backend.DeadlockView, error)
	DeadlockStats(ctx context.Context) (backend.DeadlockStats, error)
	ProcessStats(ctx context.Context) (backend.ScheduleResult, error)
	Schedule(ctx context.Context, req backend.ScheduleRequest) (backend.ScheduleResult, error)
	SimulateDeadlock(ctx context.Context) (backend.SimulateResult, error)
	RecoverDeadlock(ctx context.Context) (backend.RecoverResult, error)
}

// EventAppender persists poller observations.
type EventAppender interface {
	AppendEvent(ctx context.Context, e *store.Event) error
}

// ViewCache shares the latest View with other daemons and restarts.
type ViewCache interface {
	Save(ctx context.Context, v View) error
}

// Backoff computes the delay after the given number of consecutive failures.
type Backoff interface {
	Next(attempt int) time.Duration
}

// PollerConfig tunes the polling loop.
type PollerConfig struct {
	Interval time.Duration
	Backoff  Backoff
	WriterID string
}

// Poller fetches backend snapshots on an interval and on demand, rebuilds
// the View from each one, and publishes it to the projection.
//
// Every poll takes a sequence number before it starts fetching. A poll that
// finishes after a newer one was applied is discarded.
type Poller struct {
	source     Source
	projection *ViewProjection
	events     EventAppender
	cache      ViewCache
	config     PollerConfig
	logger     *slog.Logger

	seq      atomic.Uint64
	failures atomic.Int64
	lastPoll atomic.Int64 // unix nanos of the last successful poll

	// schedulingActive freezes the schedule panel after a scheduler run:
	// periodic polls skip the process stats endpoint until the next run.
	schedulingActive atomic.Bool
	frozen           backend.ScheduleResult
	mu               sync.Mutex
	lastDeadlock     *bool

	// publishMu orders the verdict check and cache write of applied Views;
	// publishedSeq is the newest seq that went through them.
	publishMu    sync.Mutex
	publishedSeq uint64
}

// NewPoller creates a new poller. events and cache may be nil.
func NewPoller(source Source, projection *ViewProjection, events EventAppender, cache ViewCache, config PollerConfig, logger *slog.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.WriterID == "" {
		config.WriterID = store.WriterDaemon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:     source,
		projection: projection,
		events:     events,
		cache:      cache,
		config:     config,
		logger:     logger.With("component", "poller"),
	}
}

// Start runs the polling loop until ctx is cancelled. The first poll
// happens immediately.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("poller_started", "interval", p.config.Interval.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller_stopped")
			return
		case <-timer.C:
			_, _ = p.PollOnce(ctx)
			timer.Reset(p.nextDelay())
		}
	}
}

// nextDelay is the poll interval, stretched by the backoff while the
// backend keeps failing.
func (p *Poller) nextDelay() time.Duration {
	failures := p.failures.Load()
	if failures == 0 || p.config.Backoff == nil {
		return p.config.Interval
	}
	d := p.config.Backoff.Next(int(failures - 1))
	if d < p.config.Interval {
		return p.config.Interval
	}
	return d
}

// Failures returns the number of consecutive failed polls.
func (p *Poller) Failures() int {
	return int(p.failures.Load())
}

// LastPoll returns the time of the last successful poll.
func (p *Poller) LastPoll() time.Time {
	n := p.lastPoll.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// SchedulingActive reports whether the schedule panel is frozen.
func (p *Poller) SchedulingActive() bool {
	return p.schedulingActive.Load()
}

// Refresh polls immediately and returns the resulting View.
func (p *Poller) Refresh(ctx context.Context) (View, error) {
	return p.PollOnce(ctx)
}

// PollOnce performs one fetch-build-publish cycle. When the result turns
// out to be stale the currently applied View is returned instead.
func (p *Poller) PollOnce(ctx context.Context) (View, error) {
	seq := p.seq.Add(1)

	snap, err := p.fetch(ctx)
	if err != nil {
		p.failures.Add(1)
		OsmonPollsTotal.WithLabelValues("error").Inc()
		p.logger.Warn("poll_failed", "seq", seq, "failures", p.failures.Load(), "error", err)
		p.appendEvent(ctx, store.EventTypeBackendError, "", map[string]interface{}{
			"seq":   seq,
			"error": err.Error(),
		})
		return View{}, err
	}
	p.failures.Store(0)

	view := BuildView(uuid.New().String(), seq, snap)
	if !p.projection.Apply(view) {
		OsmonPollsTotal.WithLabelValues("stale").Inc()
		OsmonStaleResultsTotal.Inc()
		p.logger.Debug("poll_stale", "seq", seq, "applied_seq", p.projection.Seq())
		latest, _ := p.projection.Latest()
		return latest, nil
	}

	OsmonPollsTotal.WithLabelValues("ok").Inc()
	p.lastPoll.Store(snap.FetchedAt.UnixNano())
	observeView(view)
	for _, d := range view.Graphs.Diagnostics {
		p.logger.Warn("edge_dropped", "seq", seq, "graph", d.Graph, "edge_id", d.EdgeID, "node_id", d.NodeID, "reason", d.Reason, "message", d.Message)
	}

	p.appendEvent(ctx, store.EventTypeSnapshotObserved, view.SnapshotID, snap)
	p.publish(ctx, view)

	return view, nil
}

// publish records the verdict of an applied View and writes it to the
// cache. Two applied polls can reach this point out of order; the older
// one is skipped so neither the verdict nor the cache goes backwards.
func (p *Poller) publish(ctx context.Context, view View) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	if view.Seq <= p.publishedSeq {
		p.logger.Debug("publish_skipped", "seq", view.Seq, "published_seq", p.publishedSeq)
		return
	}
	p.publishedSeq = view.Seq

	p.noteDeadlock(ctx, view)
	if p.cache != nil {
		if err := p.cache.Save(ctx, view); err != nil {
			p.logger.Warn("view_cache_save_failed", "error", err)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) (Snapshot, error) {
	dl, err := p.source.Visualize(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("visualize: %w", err)
	}
	stats, err := p.source.DeadlockStats(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("deadlock stats: %w", err)
	}

	var sched backend.ScheduleResult
	if p.schedulingActive.Load() {
		p.mu.Lock()
		sched = p.frozen
		p.mu.Unlock()
	} else {
		sched, err = p.source.ProcessStats(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("process stats: %w", err)
		}
	}

	return Snapshot{
		Deadlock:  dl,
		Stats:     stats,
		Schedule:  sched,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// noteDeadlock records a deadlock_changed event whenever the verdict flips.
func (p *Poller) noteDeadlock(ctx context.Context, v View) {
	p.mu.Lock()
	prev := p.lastDeadlock
	cur := v.Graphs.HasDeadlock
	p.lastDeadlock = &cur
	p.mu.Unlock()

	if prev != nil && *prev == cur {
		return
	}
	p.logger.Info("deadlock_changed", "has_deadlock", cur, "snapshot_id", v.SnapshotID)
	p.appendEvent(ctx, store.EventTypeDeadlockChanged, v.SnapshotID, map[string]interface{}{
		"has_deadlock": cur,
		"status":       string(v.Graphs.RAG.Status()),
		"banner":       v.Graphs.RAG.Banner(),
	})
}

// RunSchedule runs a scheduling algorithm on the backend, freezes the
// schedule panel on its result, and re-polls.
func (p *Poller) RunSchedule(ctx context.Context, req backend.ScheduleRequest) (View, error) {
	res, err := p.source.Schedule(ctx, req)
	if err != nil {
		return View{}, fmt.Errorf("schedule: %w", err)
	}
	p.mu.Lock()
	p.frozen = res
	p.mu.Unlock()
	p.schedulingActive.Store(true)

	p.appendEvent(ctx, store.EventTypeActionInvoked, "", map[string]interface{}{
		"action":        "schedule",
		"algorithm":     res.Algorithm,
		"quantum":       req.Quantum,
		"process_count": res.ProcessCount,
	})
	return p.Refresh(ctx)
}

// ResumeScheduling lifts the schedule freeze so polls fetch process stats again.
func (p *Poller) ResumeScheduling() {
	p.schedulingActive.Store(false)
}

// SimulateDeadlock asks the backend to construct a deadlock and re-polls.
func (p *Poller) SimulateDeadlock(ctx context.Context) (backend.SimulateResult, View, error) {
	res, err := p.source.SimulateDeadlock(ctx)
	if err != nil {
		return backend.SimulateResult{}, View{}, fmt.Errorf("simulate deadlock: %w", err)
	}
	p.appendEvent(ctx, store.EventTypeActionInvoked, "", map[string]interface{}{
		"action": "simulate_deadlock",
		"result": res,
	})
	v, err := p.Refresh(ctx)
	return res, v, err
}

// RecoverDeadlock asks the backend to break the deadlock and re-polls.
func (p *Poller) RecoverDeadlock(ctx context.Context) (backend.RecoverResult, View, error) {
	res, err := p.source.RecoverDeadlock(ctx)
	if err != nil {
		return backend.RecoverResult{}, View{}, fmt.Errorf("recover deadlock: %w", err)
	}
	p.appendEvent(ctx, store.EventTypeActionInvoked, "", map[string]interface{}{
		"action": "recover_deadlock",
		"result": res,
	})
	v, err := p.Refresh(ctx)
	return res, v, err
}

func (p *Poller) appendEvent(ctx context.Context, typ store.EventType, snapshotID string, payload interface{}) {
	if p.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("event_marshal_failed", "event_type", typ, "error", err)
		return
	}

	now := time.Now().UTC()
	causation := store.SentinelUnknown
	if snapshotID != "" {
		causation = snapshotID
	}
	evt := &store.Event{
		EventID:       store.EventID(uuid.New().String()),
		EventType:     typ,
		SchemaVersion: 1,
		TsEvent:       now,
		TsIngest:      now,
		Source: store.EventSource{
			OriginKind: "daemon",
			OriginID:   "poller",
			WriterID:   p.config.WriterID,
		},
		Correlation: store.EventCorrelation{
			CorrelationID: fmt.Sprintf("seq_%d", p.seq.Load()),
			CausationID:   causation,
		},
		Payload: data,
	}
	if typ == store.EventTypeSnapshotObserved {
		// The snapshot id doubles as the event id so archives can be joined
		// back to views served by the API.
		evt.EventID = store.EventID(snapshotID)
	}
	if err := p.events.AppendEvent(ctx, evt); err != nil {
		p.logger.Error("event_append_failed", "event_type", typ, "error", err)
	}
}
