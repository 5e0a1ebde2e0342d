package render

import (
	"strings"
	"testing"
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/graph"
	"github.com/rmax-ai/osmon/pkg/timeline"
)

func viewOf(s backend.Scenario, alg string) engine.View {
	return engine.BuildView("snap-1", 1, engine.Snapshot{
		Deadlock:  s.View(),
		Schedule:  backend.Schedule(s.Jobs, alg, 2),
		FetchedAt: time.Now().UTC(),
	})
}

func TestRAG_Deadlock(t *testing.T) {
	v := viewOf(backend.DeadlockScenario(), backend.AlgorithmFCFS)
	out := RAG(v.Graphs.RAG)

	for _, want := range []string{"DEADLOCK DETECTED", "P1", "P2", "R1 0/1", "hold(1)", "request(1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("RAG output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "P1") > strings.Index(out, "R1") {
		t.Error("process row should be drawn above the resource row")
	}
}

func TestGraphs_Empty(t *testing.T) {
	if got := RAG(graph.NewGraph(graph.KindRAG)); !strings.Contains(got, "No processes or resources to display") {
		t.Errorf("RAG placeholder = %q", got)
	}
	if got := WFG(graph.NewGraph(graph.KindWFG)); !strings.Contains(got, "No processes to display") {
		t.Errorf("WFG placeholder = %q", got)
	}
}

func TestWFG_Safe(t *testing.T) {
	v := viewOf(backend.SafeScenario(), backend.AlgorithmFCFS)
	out := WFG(v.Graphs.WFG)
	if !strings.Contains(out, "no edges") {
		t.Errorf("safe WFG should list no edges:\n%s", out)
	}

	v = viewOf(backend.DeadlockScenario(), backend.AlgorithmFCFS)
	out = WFG(v.Graphs.WFG)
	if strings.Count(out, "wait_for") != 2 {
		t.Errorf("want two wait edges:\n%s", out)
	}
}

func TestTimeline(t *testing.T) {
	v := viewOf(backend.SafeScenario(), backend.AlgorithmRoundRobin)
	out := Timeline(v.Timeline, 100)

	lines := strings.Split(out, "\n")
	if len(lines) != len(v.Timeline.Rows)+1 {
		t.Fatalf("lines = %d, want one per row plus the axis:\n%s", len(lines), out)
	}
	if !strings.Contains(out, v.Timeline.Rows[0].Caption) {
		t.Errorf("missing caption %q", v.Timeline.Rows[0].Caption)
	}
	if !strings.Contains(out, "█") {
		t.Error("no execution cells drawn")
	}

	if got := Timeline(timeline.Empty(), 80); !strings.Contains(got, "No schedule") {
		t.Errorf("empty timeline = %q", got)
	}
}

func TestTimeline_Truncated(t *testing.T) {
	chart := timeline.Reconstruct([]backend.GanttEntry{
		{ProcessID: 1, StartTime: 0, EndTime: 1 << 40},
		{ProcessID: 2, StartTime: 4, EndTime: 8},
	})
	out := Timeline(chart, 100)
	if !strings.Contains(out, "schedule spans 1099511627776 ticks") {
		t.Errorf("missing truncation note:\n%s", out)
	}
	if lines := strings.Split(out, "\n"); len(lines) != len(chart.Rows)+2 {
		t.Errorf("lines = %d, want rows plus note plus axis:\n%s", len(lines), out)
	}
}

func TestSchedule(t *testing.T) {
	v := viewOf(backend.SafeScenario(), backend.AlgorithmSJF)
	out := Schedule(v.Summary, v.Processes)
	for _, want := range []string{"Scheduling: SJF", "processes 3", "Turnaround", "A", "B"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q:\n%s", want, out)
		}
	}

	empty := Schedule(engine.ScheduleSummary{Algorithm: "None"}, nil)
	if !strings.Contains(empty, "No processes scheduled") {
		t.Errorf("empty schedule = %q", empty)
	}
}

func TestDiagnostics(t *testing.T) {
	if Diagnostics(nil) != "" {
		t.Error("no diagnostics should render nothing")
	}
	out := Diagnostics([]graph.Diagnostic{{Graph: graph.KindRAG, EdgeID: "hold-0", Reason: graph.ReasonInvalidUnits, Message: "units must be positive"}})
	if !strings.Contains(out, "1 diagnostics") || !strings.Contains(out, "hold-0") {
		t.Errorf("diagnostics = %q", out)
	}
}

func TestDashboard(t *testing.T) {
	v := viewOf(backend.DeadlockScenario(), backend.AlgorithmFCFS)
	v.Stats = backend.DeadlockStats{HasDeadlock: true, Status: "deadlocked"}
	out := Dashboard(v, 120)
	for _, want := range []string{"Resource Allocation Graph", "Wait-For Graph", "Gantt Chart", "backend status: deadlocked"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}
