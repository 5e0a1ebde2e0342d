package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/store"
)

type staticViews struct {
	view engine.View
	ok   bool
}

func (s staticViews) Latest() (engine.View, bool) { return s.view, s.ok }

type mockReportStore struct {
	events []*store.Event
	filter store.EventFilter
}

func (m *mockReportStore) QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error) {
	m.filter = filter
	return m.events, nil
}

func scheduledView() engine.View {
	sched := backend.Schedule(backend.SafeScenario().Jobs, backend.AlgorithmFCFS, 0)
	return engine.BuildView("snap-1", 1, engine.Snapshot{
		Deadlock: backend.SafeScenario().View(),
		Schedule: sched,
	})
}

func readCSV(t *testing.T, g Generator, params ReportParams) [][]string {
	t.Helper()
	r, err := g.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	return records
}

func TestTimelineReport(t *testing.T) {
	records := readCSV(t, NewTimelineReport(staticViews{scheduledView(), true}), ReportParams{})

	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	// P1 runs [0,3) with burst 3, arriving first.
	want := []string{"snap-1", "1", "A", "0", "3", "3", "#22c55e", "9"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("row 1 col %s = %q, want %q", records[0][i], records[1][i], v)
		}
	}
}

func TestProcessReport(t *testing.T) {
	records := readCSV(t, NewProcessReport(staticViews{scheduledView(), true}), ReportParams{})

	if len(records) != 5 {
		t.Fatalf("expected header + 3 processes + summary, got %d", len(records))
	}
	if records[0][0] != "pid" || records[3][1] != "P3" {
		t.Errorf("unexpected rows: %v", records)
	}
	last := records[4]
	if last[0] != "avg" || last[1] != backend.AlgorithmFCFS {
		t.Errorf("summary = %v", last)
	}
}

func TestViewReports_NoView(t *testing.T) {
	for _, typ := range []ReportType{ReportTypeTimeline, ReportTypeProcesses} {
		g, err := NewReportGenerator(typ, staticViews{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := g.Generate(context.Background(), ReportParams{}); !errors.Is(err, ErrNoView) {
			t.Errorf("%s: err = %v, want ErrNoView", typ, err)
		}
	}
}

func TestEventReport(t *testing.T) {
	now := time.Now().UTC()
	s := &mockReportStore{events: []*store.Event{
		{EventID: "evt2", EventType: store.EventTypeDeadlockChanged, TsEvent: now, Payload: json.RawMessage(`{"has_deadlock":true}`)},
		{EventID: "evt1", EventType: store.EventTypeSnapshotObserved, TsEvent: now.Add(-time.Minute), Payload: json.RawMessage(`{}`)},
	}}
	params := ReportParams{Start: now.Add(-time.Hour), End: now.Add(time.Hour), EventTypes: []store.EventType{store.EventTypeDeadlockChanged}}

	records := readCSV(t, NewEventReport(s), params)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1][1] != "evt1" || records[2][1] != "evt2" {
		t.Errorf("events not oldest first: %v", records)
	}
	if records[2][6] != `{"has_deadlock":true}` {
		t.Errorf("payload = %q", records[2][6])
	}
	if s.filter.Limit != DefaultEventLimit || len(s.filter.EventTypes) != 1 {
		t.Errorf("filter = %+v", s.filter)
	}
}

func TestNewReportGenerator(t *testing.T) {
	if _, err := NewReportGenerator("bogus", staticViews{}, nil); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := NewReportGenerator(ReportTypeEvents, staticViews{}, nil); err == nil {
		t.Error("expected error for events report without a store")
	}
}
