package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/osmon/pkg/blob"
	"github.com/rmax-ai/osmon/pkg/store"
)

// ArchivePrefix is the blob key prefix of snapshot archives.
const ArchivePrefix = "snapshots/"

// ArchiveConfig holds configuration for the ArchiveWorker.
type ArchiveConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	Retention     time.Duration `json:"retention" yaml:"retention"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
}

// ArchiveSource is the part of the event store the archive worker drains.
type ArchiveSource interface {
	ReadCandidateEvents(ctx context.Context, cutoff time.Time, limit int) ([]*store.Event, error)
	DeleteEvents(ctx context.Context, ids []string) error
}

// ArchiveWorker moves events older than the retention window into gzipped
// JSON Lines blobs and deletes them from the store.
type ArchiveWorker struct {
	source    ArchiveSource
	blobStore blob.BlobStore
	leader    Leader
	config    ArchiveConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiveWorker creates a new ArchiveWorker. leader may be nil.
func NewArchiveWorker(source ArchiveSource, blobStore blob.BlobStore, leader Leader, config ArchiveConfig, logger *slog.Logger) *ArchiveWorker {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveWorker{
		source:    source,
		blobStore: blobStore,
		leader:    leader,
		config:    config,
		logger:    logger.With("component", "archive"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the archive worker loop.
func (w *ArchiveWorker) Run(ctx context.Context) {
	if !w.config.Enabled {
		w.logger.Info("archive_disabled")
		return
	}
	w.logger.Info("archive_started", "interval", w.config.CheckInterval.String(), "retention", w.config.Retention.String())

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("archive_stopped")
			return
		case <-ticker.C:
			if !isLeader(w.leader) {
				continue
			}
			if _, err := w.ArchiveOnce(ctx); err != nil {
				w.logger.Error("archive_failed", "error", err)
			}
		}
	}
}

// ArchiveOnce archives one batch and returns the blob key it wrote, or ""
// when nothing was old enough.
func (w *ArchiveWorker) ArchiveOnce(ctx context.Context) (string, error) {
	cutoff := w.now().Add(-w.config.Retention)
	events, err := w.source.ReadCandidateEvents(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		return "", fmt.Errorf("failed to read candidate events: %w", err)
	}
	if len(events) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			gz.Close()
			return "", fmt.Errorf("failed to encode event %s: %w", e.EventID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}

	key := archiveKey(events[0].TsIngest, events[len(events)-1].TsIngest)
	if err := w.blobStore.Put(ctx, key, &buf); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = string(e.EventID)
	}
	if err := w.source.DeleteEvents(ctx, ids); err != nil {
		return "", fmt.Errorf("failed to delete archived events: %w", err)
	}

	w.logger.Info("events_archived", "key", key, "count", len(events))
	return key, nil
}

// archiveKey is snapshots/YYYY/MM/DD/<first>_<last>_<uuid>.jsonl.gz, dated
// by the first event.
func archiveKey(first, last time.Time) string {
	y, m, d := first.UTC().Date()
	return fmt.Sprintf("%s%04d/%02d/%02d/%d_%d_%s.jsonl.gz",
		ArchivePrefix, y, m, d, first.Unix(), last.Unix(), uuid.New().String())
}

// ListArchives returns the archive keys in the blob store.
func ListArchives(ctx context.Context, bs blob.BlobStore) ([]string, error) {
	return bs.List(ctx, ArchivePrefix)
}

// ReadArchive decodes the events of one archive blob.
func ReadArchive(ctx context.Context, bs blob.BlobStore, key string) ([]*store.Event, error) {
	rc, err := bs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", key, err)
	}
	defer gz.Close()

	events := make([]*store.Event, 0)
	dec := json.NewDecoder(gz)
	for {
		var e store.Event
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("archive %s: %w", key, err)
		}
		events = append(events, &e)
	}
	return events, nil
}
