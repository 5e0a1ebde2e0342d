package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rmax-ai/osmon/pkg/store"
)

// EventQuerier reads stored events.
type EventQuerier interface {
	QueryEvents(ctx context.Context, f store.EventFilter) ([]*store.Event, error)
}

// RestoreFromStore rebuilds the View of the newest stored snapshot. It
// returns false when the store holds no snapshot yet.
func RestoreFromStore(ctx context.Context, q EventQuerier) (View, bool, error) {
	events, err := q.QueryEvents(ctx, store.EventFilter{
		EventTypes: []store.EventType{store.EventTypeSnapshotObserved},
		Limit:      1,
	})
	if err != nil {
		return View{}, false, fmt.Errorf("read latest snapshot: %w", err)
	}
	if len(events) == 0 {
		return View{}, false, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(events[0].Payload, &snap); err != nil {
		return View{}, false, fmt.Errorf("decode snapshot %s: %w", events[0].EventID, err)
	}
	return BuildView(string(events[0].EventID), 0, snap), true, nil
}
