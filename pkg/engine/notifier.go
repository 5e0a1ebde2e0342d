package engine

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rmax-ai/osmon/pkg/store"
)

const (
	// NotifierCursorKey is the system_state key of the last delivered event timestamp.
	NotifierCursorKey = "deadlock_notifier_cursor"

	SignatureHeader = "X-Osmon-Signature"
	EventIDHeader   = "X-Osmon-Event-ID"
	EventTypeHeader = "X-Osmon-Event-Type"
)

// NotifierConfig configures deadlock webhooks.
type NotifierConfig struct {
	URLs         []string      `json:"urls" yaml:"urls"`
	Secret       string        `json:"-" yaml:"secret"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	BatchSize    int           `json:"batch_size" yaml:"batch_size"`
}

// NotifierStore is the event store as seen by the notifier.
type NotifierStore interface {
	ReadEventsSince(ctx context.Context, since time.Time, limit int, types ...store.EventType) ([]*store.Event, error)
	GetSystemState(ctx context.Context, key string) (string, error)
	SetSystemState(ctx context.Context, key, value string) error
}

// Notifier posts deadlock_changed events to webhooks. Delivery is at least
// once: the cursor only advances after a batch has been attempted.
type Notifier struct {
	store  NotifierStore
	leader Leader
	config NotifierConfig
	client *http.Client
	logger *slog.Logger
	sleep  func(time.Duration)
}

// NewNotifier creates a new notifier. leader may be nil.
func NewNotifier(s NotifierStore, leader Leader, config NotifierConfig, logger *slog.Logger) *Notifier {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		store:  s,
		leader: leader,
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With("component", "notifier"),
		sleep:  time.Sleep,
	}
}

// Start runs the delivery loop until ctx is cancelled. Without URLs it
// returns immediately.
func (n *Notifier) Start(ctx context.Context) {
	if len(n.config.URLs) == 0 {
		return
	}
	n.logger.Info("notifier_started", "webhooks", len(n.config.URLs))

	cursor, err := n.loadCursor(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			n.logger.Warn("notifier_cursor_load_failed", "error", err)
		}
		cursor = time.Now().UTC()
	}

	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("notifier_stopped")
			return
		case <-ticker.C:
			if !isLeader(n.leader) {
				continue
			}
			next, err := n.DeliverSince(ctx, cursor)
			if err != nil {
				n.logger.Error("notifier_batch_failed", "error", err)
				continue
			}
			if next.After(cursor) {
				cursor = next
				if err := n.saveCursor(ctx, cursor); err != nil {
					n.logger.Warn("notifier_cursor_save_failed", "error", err)
				}
			}
		}
	}
}

// DeliverSince sends every deadlock_changed event ingested after since and
// returns the timestamp of the last one attempted.
func (n *Notifier) DeliverSince(ctx context.Context, since time.Time) (time.Time, error) {
	events, err := n.store.ReadEventsSince(ctx, since, n.config.BatchSize, store.EventTypeDeadlockChanged)
	if err != nil {
		return since, err
	}
	last := since
	for _, evt := range events {
		for _, url := range n.config.URLs {
			if err := n.send(ctx, url, evt); err != nil {
				n.logger.Warn("webhook_delivery_failed", "event_id", evt.EventID, "url", url, "error", err)
			}
		}
		last = evt.TsIngest
	}
	return last, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// send performs the POST with linear backoff. 4xx responses are not retried.
func (n *Notifier) send(ctx context.Context, url string, evt *store.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for i := 0; i < n.config.MaxRetries; i++ {
		if i > 0 {
			n.sleep(time.Duration(i) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "osmon-notifier/1.0")
		req.Header.Set(EventIDHeader, string(evt.EventID))
		req.Header.Set(EventTypeHeader, string(evt.EventType))
		if n.config.Secret != "" {
			req.Header.Set(SignatureHeader, Sign(n.config.Secret, body))
		}

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook responded with status: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}
	return fmt.Errorf("max retries reached: %w", lastErr)
}

func (n *Notifier) loadCursor(ctx context.Context) (time.Time, error) {
	val, err := n.store.GetSystemState(ctx, NotifierCursorKey)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, val)
}

func (n *Notifier) saveCursor(ctx context.Context, t time.Time) error {
	return n.store.SetSystemState(ctx, NotifierCursorKey, t.Format(time.RFC3339Nano))
}
