package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rmax-ai/osmon/pkg/store"
)

// RetentionConfig bounds how long events stay in the store. ByType
// overrides Default for individual event types.
type RetentionConfig struct {
	Enabled       bool                              `json:"enabled" yaml:"enabled"`
	Default       time.Duration                     `json:"default" yaml:"default"`
	ByType        map[store.EventType]time.Duration `json:"by_type" yaml:"by_type"`
	CheckInterval time.Duration                     `json:"check_interval" yaml:"check_interval"`
}

// EventPruner deletes events older than a retention window.
type EventPruner interface {
	PruneEvents(ctx context.Context, retention time.Duration, eventType store.EventType) (int64, error)
}

type PruneWorker struct {
	store  EventPruner
	leader Leader
	config RetentionConfig
	logger *slog.Logger
}

func NewPruneWorker(st EventPruner, leader Leader, cfg RetentionConfig, logger *slog.Logger) *PruneWorker {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneWorker{
		store:  st,
		leader: leader,
		config: cfg,
		logger: logger.With("component", "prune"),
	}
}

func (w *PruneWorker) Run(ctx context.Context) {
	if !w.config.Enabled {
		w.logger.Info("prune_disabled")
		return
	}
	w.logger.Info("prune_started", "interval", w.config.CheckInterval.String())

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	w.Prune(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("prune_stopped")
			return
		case <-ticker.C:
			w.Prune(ctx)
		}
	}
}

// Prune applies the per-type windows first, then the default window to
// every type without an override. It returns the number of deleted events.
func (w *PruneWorker) Prune(ctx context.Context) int64 {
	if !w.config.Enabled || !isLeader(w.leader) {
		return 0
	}

	var total int64
	for eventType, ttl := range w.config.ByType {
		if ttl <= 0 {
			continue
		}
		n, err := w.store.PruneEvents(ctx, ttl, eventType)
		if err != nil {
			w.logger.Error("prune_failed", "event_type", eventType, "error", err)
			continue
		}
		if n > 0 {
			w.logger.Info("events_pruned", "event_type", eventType, "count", n, "ttl", ttl.String())
		}
		total += n
	}

	if w.config.Default > 0 {
		for _, t := range []store.EventType{
			store.EventTypeSnapshotObserved,
			store.EventTypeBackendError,
			store.EventTypeActionInvoked,
			store.EventTypeDeadlockChanged,
		} {
			if _, ok := w.config.ByType[t]; ok {
				continue
			}
			n, err := w.store.PruneEvents(ctx, w.config.Default, t)
			if err != nil {
				w.logger.Error("prune_failed", "event_type", t, "error", err)
				continue
			}
			total += n
		}
		if total > 0 {
			w.logger.Info("events_pruned", "count", total, "ttl", w.config.Default.String())
		}
	}
	return total
}
