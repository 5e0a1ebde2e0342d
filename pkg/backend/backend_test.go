package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNormalize_FillsDefaults(t *testing.T) {
	in := DeadlockView{
		Processes: []Process{{ID: 1}, {ID: 2, Name: "  B  "}},
		Resources: []Resource{{ID: 7, Total: 2, Available: 5}, {ID: 8, Total: -1, Available: -3}},
		RAGEdges: []RAGEdge{
			{Type: " HOLD ", From: Endpoint{ID: 7, Type: "Resource"}, To: Endpoint{ID: 1, Type: "process"}, Units: 1},
		},
		WaitForGraph: []WFGEdge{{ProcessID: 3, WaitingFor: []WaitRef{{ProcessID: 4}}}},
	}

	out := Normalize(in)

	if out.Processes[0].Name != "P1" || out.Processes[1].Name != "B" {
		t.Errorf("process labels = %q, %q", out.Processes[0].Name, out.Processes[1].Name)
	}
	if out.Resources[0].Name != "R7" || out.Resources[0].Available != 2 {
		t.Errorf("resource 7 = %+v, want R7 with available clamped to 2", out.Resources[0])
	}
	if out.Resources[1].Total != 0 || out.Resources[1].Available != 0 {
		t.Errorf("resource 8 = %+v, want zero totals", out.Resources[1])
	}
	e := out.RAGEdges[0]
	if e.Type != RAGEdgeHold || e.From.Type != EndpointResource || e.From.Name != "R7" || e.To.Name != "P1" {
		t.Errorf("edge = %+v", e)
	}
	if out.WaitForGraph[0].ProcessName != "P3" || out.WaitForGraph[0].WaitingFor[0].ProcessName != "P4" {
		t.Errorf("wfg labels = %+v", out.WaitForGraph[0])
	}
	if in.Processes[0].Name != "" {
		t.Error("Normalize mutated its input")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	once := Normalize(DeadlockScenario().View())
	twice := Normalize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Normalize is not idempotent:\n%+v\n%+v", once, twice)
	}
}

func TestDecodeDeadlockView_NullFields(t *testing.T) {
	v, err := DecodeDeadlockView(strings.NewReader(`{"ragEdges":null,"processes":null}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.RAGEdges == nil || v.WaitForGraph == nil || v.Processes == nil || v.Resources == nil {
		t.Errorf("expected empty, non-nil collections: %+v", v)
	}
	if v.HasDeadlock {
		t.Error("absent hasDeadlock should be false")
	}

	if _, err := DecodeDeadlockView(strings.NewReader(`{`)); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestNormalizeSchedule(t *testing.T) {
	res := NormalizeSchedule(ScheduleResult{
		Processes:  []ProcessDetail{{PID: 4}},
		GanttChart: []GanttEntry{{ProcessID: 4, StartTime: 0, EndTime: 2}},
	})
	if res.Algorithm != "None" {
		t.Errorf("Algorithm = %q, want None", res.Algorithm)
	}
	if res.ProcessCount != 1 {
		t.Errorf("ProcessCount = %d, want 1", res.ProcessCount)
	}
	if res.GanttChart[0].ProcessName != "P4" || res.Processes[0].ProcessName != "P4" {
		t.Errorf("labels not filled: %+v", res)
	}
}

func TestClient_AgainstFake(t *testing.T) {
	fake := NewFakeBackend()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL+"/api/", time.Second)

	h, err := c.Health(ctx)
	if err != nil || h.Status != "ok" {
		t.Fatalf("Health = %+v, %v", h, err)
	}

	v, err := c.Visualize(ctx)
	if err != nil {
		t.Fatalf("Visualize: %v", err)
	}
	if len(v.RAGEdges) != 2 || v.HasDeadlock {
		t.Errorf("unexpected safe view: %+v", v)
	}

	sim, err := c.SimulateDeadlock(ctx)
	if err != nil || !sim.DeadlockCreated {
		t.Fatalf("SimulateDeadlock = %+v, %v", sim, err)
	}
	stats, err := c.DeadlockStats(ctx)
	if err != nil || !stats.HasDeadlock || stats.SafeState {
		t.Fatalf("DeadlockStats = %+v, %v", stats, err)
	}

	rec, err := c.RecoverDeadlock(ctx)
	if err != nil || rec.StillDeadlocked || rec.ProcessesTerminated != 1 {
		t.Fatalf("RecoverDeadlock = %+v, %v", rec, err)
	}
	if fake.Current() != "safe" {
		t.Errorf("Current = %q after recover, want safe", fake.Current())
	}

	res, err := c.Schedule(ctx, ScheduleRequest{Algorithm: "rr", Quantum: 2})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.Algorithm != AlgorithmRoundRobin || len(res.GanttChart) == 0 {
		t.Errorf("Schedule = %+v", res)
	}
	last, err := c.ProcessStats(ctx)
	if err != nil {
		t.Fatalf("ProcessStats: %v", err)
	}
	if !reflect.DeepEqual(last.GanttChart, res.GanttChart) {
		t.Errorf("ProcessStats did not return the last run")
	}
}

func TestClient_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Visualize(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("err = %v, want ErrUnexpectedStatus", err)
	}
}

func TestSchedule_Algorithms(t *testing.T) {
	jobs := []Job{
		{PID: 1, Arrival: 0, Burst: 4, Priority: 3},
		{PID: 2, Arrival: 1, Burst: 1, Priority: 1},
		{PID: 3, Arrival: 2, Burst: 2, Priority: 2},
	}

	tests := []struct {
		algorithm string
		wantOrder []int
		wantEnd   int
	}{
		{"fcfs", []int{1, 2, 3}, 7},
		{"SJF", []int{1, 2, 3}, 7},
		{"priority", []int{1, 2, 3}, 7},
		{"round_robin", []int{1, 2, 3, 1}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			res := Schedule(jobs, tt.algorithm, 2)
			var order []int
			for _, g := range res.GanttChart {
				order = append(order, g.ProcessID)
			}
			if !reflect.DeepEqual(order, tt.wantOrder) {
				t.Errorf("order = %v, want %v", order, tt.wantOrder)
			}
			if end := res.GanttChart[len(res.GanttChart)-1].EndTime; end != tt.wantEnd {
				t.Errorf("end = %d, want %d", end, tt.wantEnd)
			}
			if res.ProcessCount != 3 {
				t.Errorf("ProcessCount = %d", res.ProcessCount)
			}
		})
	}
}

func TestSchedule_SJFPicksShortestReady(t *testing.T) {
	jobs := []Job{
		{PID: 1, Arrival: 0, Burst: 3},
		{PID: 2, Arrival: 1, Burst: 5},
		{PID: 3, Arrival: 1, Burst: 1},
	}
	res := Schedule(jobs, AlgorithmSJF, 0)
	got := []int{res.GanttChart[0].ProcessID, res.GanttChart[1].ProcessID, res.GanttChart[2].ProcessID}
	if !reflect.DeepEqual(got, []int{1, 3, 2}) {
		t.Errorf("order = %v", got)
	}
	// P3 waits 2, P2 waits 3.
	if res.AverageWaitingTime != 5.0/3.0 {
		t.Errorf("AverageWaitingTime = %v", res.AverageWaitingTime)
	}
}

func TestSchedule_IdleGap(t *testing.T) {
	res := Schedule([]Job{{PID: 1, Arrival: 3, Burst: 2}}, AlgorithmFCFS, 0)
	if res.GanttChart[0].StartTime != 3 || res.GanttChart[0].EndTime != 5 {
		t.Errorf("gantt = %+v", res.GanttChart)
	}
	if res.Processes[0].WaitingTime != 0 {
		t.Errorf("waiting = %d", res.Processes[0].WaitingTime)
	}
}

func TestLoadScenarios(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	doc := `
scenarios:
  - name: lonely
    processes:
      - id: 9
    resources:
      - id: 1
        total: 2
        available: 2
    hasDeadlock: false
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadScenarios(path)
	if err != nil {
		t.Fatalf("LoadScenarios: %v", err)
	}
	if len(got) != 1 || got[0].Name != "lonely" || got[0].Processes[0].ID != 9 {
		t.Fatalf("unexpected scenarios: %+v", got)
	}

	fake := NewFakeBackend(got...)
	if !fake.Use("lonely") {
		t.Fatal("Use(lonely) = false")
	}
	if fake.Use("missing") {
		t.Error("Use(missing) = true")
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("scenarios:\n  - processes: []\n"), 0644)
	if _, err := LoadScenarios(bad); err == nil {
		t.Error("expected error for unnamed scenario")
	}
}

func TestLoadScenarios_Example(t *testing.T) {
	got, err := LoadScenarios(filepath.Join("..", "..", "examples", "scenarios.yaml"))
	if err != nil {
		t.Fatalf("LoadScenarios: %v", err)
	}
	if len(got) != 1 || got[0].Name != "dining" {
		t.Fatalf("unexpected scenarios: %+v", got)
	}
	v := Normalize(got[0].View())
	if !v.HasDeadlock || len(v.RAGEdges) != 6 || len(v.WaitForGraph) != 3 {
		t.Errorf("dining view = %+v", v)
	}
	if v.Resources[0].Name != "Fork-1" || v.WaitForGraph[0].WaitingFor[0].ProcessName != "P2" {
		t.Errorf("labels not resolved: %+v", v)
	}
}
