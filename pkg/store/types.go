package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrLeaseLost is returned by Renew when another holder owns the lease.
var ErrLeaseLost = errors.New("lease lost or stolen")

// EventType represents the kind of event.
type EventType string

const (
	EventTypeSnapshotObserved EventType = "snapshot_observed"
	EventTypeBackendError     EventType = "backend_error"
	EventTypeActionInvoked    EventType = "action_invoked"
	EventTypeDeadlockChanged  EventType = "deadlock_changed"
)

// EventID is a unique identifier for an event.
type EventID string

// Event is the envelope stored for every observation the daemon makes.
type Event struct {
	EventID       EventID          `json:"event_id"`
	EventType     EventType        `json:"event_type"`
	SchemaVersion int              `json:"schema_version"`
	TsEvent       time.Time        `json:"ts_event"`
	TsIngest      time.Time        `json:"ts_ingest"`
	Source        EventSource      `json:"source"`
	Correlation   EventCorrelation `json:"correlation"`
	Payload       json.RawMessage  `json:"payload"`
}

// EventSource describes the origin of the event.
type EventSource struct {
	OriginKind string `json:"origin_kind"` // daemon, operator
	OriginID   string `json:"origin_id"`   // poller, api, mcp
	WriterID   string `json:"writer_id"`
}

// EventCorrelation groups events logically. Actions carry the snapshot
// they triggered in CausationID.
type EventCorrelation struct {
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id"`
}

// EventFilter defines filters for querying events.
type EventFilter struct {
	From       time.Time
	To         time.Time
	EventTypes []EventType
	Limit      int
}

// Lease represents a named claim held by one daemon instance.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"`
}

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew updates the expiry of an existing lease held by holderID.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state, or nil when nobody holds it.
	Get(ctx context.Context, name string) (*Lease, error)
}

// Sentinel constants for origins.
const (
	WriterDaemon    = "osmon-d"
	SentinelUnknown = "sentinel:unknown"
)
