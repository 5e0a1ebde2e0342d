package engine

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/logging"
	"github.com/rmax-ai/osmon/pkg/store"
)

type constBackoff time.Duration

func (b constBackoff) Next(attempt int) time.Duration { return time.Duration(b) * time.Duration(attempt+1) }

type recordingCache struct{ saved []View }

func (c *recordingCache) Save(ctx context.Context, v View) error {
	c.saved = append(c.saved, v)
	return nil
}

// scriptedSource answers Visualize with the next verdict in line.
type scriptedSource struct {
	mu       sync.Mutex
	verdicts []bool
}

func (s *scriptedSource) Visualize(ctx context.Context) (backend.DeadlockView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.verdicts[0]
	s.verdicts = s.verdicts[1:]
	return backend.DeadlockView{HasDeadlock: v}, nil
}

func (s *scriptedSource) DeadlockStats(ctx context.Context) (backend.DeadlockStats, error) {
	return backend.DeadlockStats{}, nil
}

func (s *scriptedSource) ProcessStats(ctx context.Context) (backend.ScheduleResult, error) {
	return backend.ScheduleResult{}, nil
}

func (s *scriptedSource) Schedule(ctx context.Context, req backend.ScheduleRequest) (backend.ScheduleResult, error) {
	return backend.ScheduleResult{}, nil
}

func (s *scriptedSource) SimulateDeadlock(ctx context.Context) (backend.SimulateResult, error) {
	return backend.SimulateResult{}, nil
}

func (s *scriptedSource) RecoverDeadlock(ctx context.Context) (backend.RecoverResult, error) {
	return backend.RecoverResult{}, nil
}

// gatedEvents holds the first snapshot_observed append until release is
// closed, parking that poll between Apply and publish.
type gatedEvents struct {
	mu      sync.Mutex
	events  []*store.Event
	gated   bool
	blocked chan struct{}
	release chan struct{}
}

func (g *gatedEvents) AppendEvent(ctx context.Context, e *store.Event) error {
	g.mu.Lock()
	hold := !g.gated && e.EventType == store.EventTypeSnapshotObserved
	if hold {
		g.gated = true
	}
	g.events = append(g.events, e)
	g.mu.Unlock()

	if hold {
		close(g.blocked)
		<-g.release
	}
	return nil
}

func (g *gatedEvents) count(typ store.EventType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range g.events {
		if e.EventType == typ {
			n++
		}
	}
	return n
}

func TestPoller_PollOnce(t *testing.T) {
	s := setupStore(t)
	p, _ := setupPoller(t, s)
	cache := &recordingCache{}
	p.cache = cache
	ctx := context.Background()

	v, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if v.Seq != 1 || v.SnapshotID == "" {
		t.Errorf("view seq=%d id=%q", v.Seq, v.SnapshotID)
	}
	if len(v.Graphs.RAG.Nodes) != 3 || len(v.Graphs.RAG.Edges) != 2 {
		t.Errorf("RAG = %d nodes, %d edges", len(v.Graphs.RAG.Nodes), len(v.Graphs.RAG.Edges))
	}
	if v.Graphs.HasDeadlock {
		t.Error("safe scenario reported a deadlock")
	}
	if p.LastPoll().IsZero() || p.Failures() != 0 {
		t.Errorf("LastPoll=%v Failures=%d", p.LastPoll(), p.Failures())
	}

	got, err := s.GetEvent(ctx, store.EventID(v.SnapshotID))
	if err != nil {
		t.Fatalf("snapshot event not stored under the snapshot id: %v", err)
	}
	if got.EventType != store.EventTypeSnapshotObserved {
		t.Errorf("event type = %s", got.EventType)
	}
	if n := countEvents(t, s, store.EventTypeDeadlockChanged); n != 1 {
		t.Errorf("deadlock_changed events = %d, want 1 for the first verdict", n)
	}
	if len(cache.saved) != 1 || cache.saved[0].SnapshotID != v.SnapshotID {
		t.Errorf("cache saved %d views", len(cache.saved))
	}

	// Same verdict, no new deadlock_changed.
	if _, err := p.PollOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if n := countEvents(t, s, store.EventTypeDeadlockChanged); n != 1 {
		t.Errorf("deadlock_changed events = %d after unchanged poll", n)
	}
}

func TestPoller_StaleResultDiscarded(t *testing.T) {
	p, _ := setupPoller(t, nil)

	// A newer poll has already been applied.
	p.projection.Apply(View{SnapshotID: "newer", Seq: 100})

	v, err := p.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if v.SnapshotID != "newer" {
		t.Errorf("PollOnce returned %q, want the applied view", v.SnapshotID)
	}
	if latest, _ := p.projection.Latest(); latest.SnapshotID != "newer" {
		t.Errorf("stale result replaced the projection: %q", latest.SnapshotID)
	}
}

func TestPoller_SimulateAndRecover(t *testing.T) {
	s := setupStore(t)
	p, fake := setupPoller(t, s)
	ctx := context.Background()

	if _, err := p.PollOnce(ctx); err != nil {
		t.Fatal(err)
	}

	res, v, err := p.SimulateDeadlock(ctx)
	if err != nil {
		t.Fatalf("SimulateDeadlock: %v", err)
	}
	if !res.DeadlockCreated || !v.Graphs.HasDeadlock || fake.Current() != "deadlock" {
		t.Fatalf("simulate: res=%+v deadlock=%v", res, v.Graphs.HasDeadlock)
	}
	if len(v.Graphs.WFG.Edges) != 2 {
		t.Errorf("WFG edges = %d, want 2", len(v.Graphs.WFG.Edges))
	}

	rec, v, err := p.RecoverDeadlock(ctx)
	if err != nil {
		t.Fatalf("RecoverDeadlock: %v", err)
	}
	if rec.StillDeadlocked || v.Graphs.HasDeadlock {
		t.Errorf("recover: res=%+v deadlock=%v", rec, v.Graphs.HasDeadlock)
	}

	if n := countEvents(t, s, store.EventTypeActionInvoked); n != 2 {
		t.Errorf("action_invoked events = %d, want 2", n)
	}
	if n := countEvents(t, s, store.EventTypeDeadlockChanged); n != 3 {
		t.Errorf("deadlock_changed events = %d, want 3", n)
	}
}

func TestPoller_ScheduleFreeze(t *testing.T) {
	p, fake := setupPoller(t, nil)
	ctx := context.Background()

	v, err := p.RunSchedule(ctx, backend.ScheduleRequest{Algorithm: "fcfs"})
	if err != nil {
		t.Fatalf("RunSchedule: %v", err)
	}
	if !p.SchedulingActive() {
		t.Fatal("scheduling should be active after a run")
	}
	if v.Summary.Algorithm != backend.AlgorithmFCFS || len(v.Timeline.Rows) != 3 {
		t.Errorf("summary=%+v rows=%d", v.Summary, len(v.Timeline.Rows))
	}

	before := fake.Calls("/api/os/processes")
	v2, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fake.Calls("/api/os/processes") != before {
		t.Error("frozen poll fetched process stats")
	}
	if v2.Timeline.MaxTime != v.Timeline.MaxTime {
		t.Errorf("frozen timeline changed: %d -> %d", v.Timeline.MaxTime, v2.Timeline.MaxTime)
	}

	p.ResumeScheduling()
	if _, err := p.PollOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if fake.Calls("/api/os/processes") != before+1 {
		t.Error("resumed poll did not fetch process stats")
	}
}

func TestPoller_FailureBackoff(t *testing.T) {
	s := setupStore(t)
	srv := httptest.NewServer(backend.NewFakeBackend())
	url := srv.URL
	srv.Close()

	p := NewPoller(backend.NewClient(url+"/api", 100*time.Millisecond), NewViewProjection(), s, nil,
		PollerConfig{Interval: time.Second, Backoff: constBackoff(3 * time.Second)}, logging.Discard())

	if d := p.nextDelay(); d != time.Second {
		t.Errorf("healthy delay = %v", d)
	}
	for i := 0; i < 2; i++ {
		if _, err := p.PollOnce(context.Background()); err == nil {
			t.Fatal("expected poll against a closed server to fail")
		}
	}
	if p.Failures() != 2 {
		t.Errorf("Failures = %d", p.Failures())
	}
	if d := p.nextDelay(); d != 6*time.Second {
		t.Errorf("backoff delay = %v, want 6s", d)
	}
	if n := countEvents(t, s, store.EventTypeBackendError); n != 2 {
		t.Errorf("backend_error events = %d", n)
	}
	if _, ok := p.projection.Latest(); ok {
		t.Error("failed poll published a view")
	}
}

func TestRestoreFromStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, ok, err := RestoreFromStore(ctx, s); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	p, _ := setupPoller(t, s)
	if _, _, err := p.SimulateDeadlock(ctx); err != nil {
		t.Fatal(err)
	}
	live, _ := p.projection.Latest()

	restored, ok, err := RestoreFromStore(ctx, s)
	if err != nil || !ok {
		t.Fatalf("RestoreFromStore: ok=%v err=%v", ok, err)
	}
	if restored.SnapshotID != live.SnapshotID || restored.Seq != 0 {
		t.Errorf("restored id=%q seq=%d", restored.SnapshotID, restored.Seq)
	}
	if !restored.Graphs.HasDeadlock || len(restored.Graphs.RAG.Edges) != len(live.Graphs.RAG.Edges) {
		t.Errorf("restored graphs differ from live ones")
	}
}

func TestPoller_OverlappingPollsPublishInOrder(t *testing.T) {
	events := &gatedEvents{blocked: make(chan struct{}), release: make(chan struct{})}
	cache := &recordingCache{}
	p := NewPoller(&scriptedSource{verdicts: []bool{false, true}}, NewViewProjection(), events, cache,
		PollerConfig{Interval: time.Second}, logging.Discard())
	ctx := context.Background()

	done := make(chan View)
	go func() {
		v, _ := p.PollOnce(ctx)
		done <- v
	}()
	<-events.blocked

	// The second poll runs to completion while the first is parked after Apply.
	second, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	close(events.release)
	first := <-done

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("seqs = %d, %d", first.Seq, second.Seq)
	}
	if latest, _ := p.projection.Latest(); latest.Seq != 2 {
		t.Errorf("projection seq = %d, want 2", latest.Seq)
	}
	if n := events.count(store.EventTypeDeadlockChanged); n != 1 {
		t.Errorf("deadlock_changed events = %d, want 1", n)
	}
	if p.lastDeadlock == nil || !*p.lastDeadlock {
		t.Error("late first poll rolled the verdict back")
	}
	if len(cache.saved) != 1 || cache.saved[0].Seq != 2 {
		t.Errorf("cache writes = %+v, want only seq 2", cache.saved)
	}
}
