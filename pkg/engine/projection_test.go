package engine

import (
	"testing"
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
)

func TestViewProjection_RejectsStale(t *testing.T) {
	p := NewViewProjection()
	if _, ok := p.Latest(); ok {
		t.Fatal("new projection should be empty")
	}

	if !p.Apply(View{SnapshotID: "a", Seq: 2}) {
		t.Fatal("first apply rejected")
	}
	if p.Apply(View{SnapshotID: "b", Seq: 1}) {
		t.Error("older seq accepted")
	}
	if p.Apply(View{SnapshotID: "c", Seq: 2}) {
		t.Error("equal seq accepted")
	}
	if !p.Apply(View{SnapshotID: "d", Seq: 3}) {
		t.Error("newer seq rejected")
	}

	v, ok := p.Latest()
	if !ok || v.SnapshotID != "d" || p.Seq() != 3 {
		t.Errorf("Latest = %+v, %v", v, ok)
	}
}

func TestViewProjection_Restore(t *testing.T) {
	p := NewViewProjection()
	if p.Restore(View{}) {
		t.Error("restored an empty view")
	}
	if !p.Restore(View{SnapshotID: "old", Seq: 40}) {
		t.Fatal("restore into empty projection rejected")
	}
	if p.Seq() != 0 {
		t.Errorf("restored seq = %d, want 0", p.Seq())
	}
	if p.Restore(View{SnapshotID: "older", Seq: 41}) {
		t.Error("second restore overrode the first")
	}

	// The first live poll of a fresh process has seq 1.
	if !p.Apply(View{SnapshotID: "live", Seq: 1}) {
		t.Error("live poll did not replace restored view")
	}
	if p.Restore(View{SnapshotID: "late"}) {
		t.Error("restore overrode a live view")
	}
}

func TestViewProjection_EarlierReadersKeepTheirView(t *testing.T) {
	p := NewViewProjection()
	first := BuildView("first", 1, Snapshot{Deadlock: backend.SafeScenario().View(), FetchedAt: time.Now()})
	p.Apply(first)

	held, _ := p.Latest()
	nodes := len(held.Graphs.RAG.Nodes)

	p.Apply(BuildView("second", 2, Snapshot{Deadlock: backend.DeadlockScenario().View(), FetchedAt: time.Now()}))

	if held.SnapshotID != "first" || len(held.Graphs.RAG.Nodes) != nodes || held.Graphs.HasDeadlock {
		t.Errorf("held view changed after a newer apply: %s deadlock=%v", held.SnapshotID, held.Graphs.HasDeadlock)
	}
	if latest, _ := p.Latest(); latest.SnapshotID != "second" || !latest.Graphs.HasDeadlock {
		t.Errorf("Latest = %s", latest.SnapshotID)
	}
}
