package graph

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/rmax-ai/osmon/pkg/backend"
)

func fixtureSafe() backend.DeadlockView {
	return backend.DeadlockView{
		Processes: []backend.Process{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}},
		Resources: []backend.Resource{{ID: 1, Name: "R1", Total: 1, Available: 0}},
		RAGEdges: []backend.RAGEdge{
			{
				Type:  backend.RAGEdgeHold,
				From:  backend.Endpoint{ID: 1, Type: backend.EndpointResource, Name: "R1"},
				To:    backend.Endpoint{ID: 1, Type: backend.EndpointProcess, Name: "A"},
				Units: 1,
			},
			{
				Type:  backend.RAGEdgeRequest,
				From:  backend.Endpoint{ID: 2, Type: backend.EndpointProcess, Name: "B"},
				To:    backend.Endpoint{ID: 1, Type: backend.EndpointResource, Name: "R1"},
				Units: 1,
			},
		},
	}
}

func fixtureCycle() backend.DeadlockView {
	return backend.DeadlockView{
		Processes: []backend.Process{{ID: 1}, {ID: 2}},
		WaitForGraph: []backend.WFGEdge{
			{ProcessID: 1, WaitingFor: []backend.WaitRef{{ProcessID: 2}}},
			{ProcessID: 2, WaitingFor: []backend.WaitRef{{ProcessID: 1}}},
		},
		HasDeadlock: true,
	}
}

func ids(g Graph) (nodes, edges []string) {
	for _, n := range g.Nodes {
		nodes = append(nodes, n.ID)
	}
	for _, e := range g.Edges {
		edges = append(edges, e.ID)
	}
	return nodes, edges
}

func TestBuildGraphs_EndToEnd(t *testing.T) {
	gs := BuildGraphs(fixtureSafe())

	nodes, edges := ids(gs.RAG)
	if want := []string{"process-1", "process-2", "resource-1"}; !reflect.DeepEqual(nodes, want) {
		t.Errorf("RAG nodes = %v, want %v", nodes, want)
	}
	if want := []string{"hold-0", "request-0"}; !reflect.DeepEqual(edges, want) {
		t.Errorf("RAG edges = %v, want %v", edges, want)
	}

	hold, _ := gs.RAG.Edge("hold-0")
	if hold.FromID != "resource-1" || hold.ToID != "process-1" {
		t.Errorf("hold-0 = %s -> %s, want resource-1 -> process-1", hold.FromID, hold.ToID)
	}
	req, _ := gs.RAG.Edge("request-0")
	if req.FromID != "process-2" || req.ToID != "resource-1" {
		t.Errorf("request-0 = %s -> %s, want process-2 -> resource-1", req.FromID, req.ToID)
	}

	if len(gs.WFG.Nodes) != 2 || len(gs.WFG.Edges) != 0 {
		t.Errorf("WFG = %d nodes, %d edges; want 2, 0", len(gs.WFG.Nodes), len(gs.WFG.Edges))
	}
	if len(gs.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", gs.Diagnostics)
	}
	if gs.RAG.Status() != StatusSafe {
		t.Errorf("Status = %s, want safe", gs.RAG.Status())
	}
	if gs.WFG.Status() != StatusIdle || gs.WFG.Banner() != "" {
		t.Errorf("WFG status = %s banner = %q", gs.WFG.Status(), gs.WFG.Banner())
	}
}

func TestBuildGraphs_Deterministic(t *testing.T) {
	a := Build(fixtureSafe())
	b := Build(fixtureSafe())
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Build is not deterministic")
	}
}

func TestBuildGraphs_Empty(t *testing.T) {
	gs := Build(backend.DeadlockView{})
	if !gs.RAG.Empty() || !gs.WFG.Empty() {
		t.Fatal("expected empty graphs")
	}
	if gs.RAG.Edges == nil || gs.WFG.Nodes == nil {
		t.Error("empty graphs should carry non-nil slices")
	}
	if gs.RAG.Placeholder() != "No processes or resources to display" {
		t.Errorf("RAG placeholder = %q", gs.RAG.Placeholder())
	}
	if gs.WFG.Placeholder() != "No processes to display" {
		t.Errorf("WFG placeholder = %q", gs.WFG.Placeholder())
	}
}

func TestBuildGraphs_Cycle(t *testing.T) {
	gs := Build(fixtureCycle())

	_, edges := ids(gs.WFG)
	if want := []string{"wfg-edge-0-0", "wfg-edge-1-0"}; !reflect.DeepEqual(edges, want) {
		t.Fatalf("WFG edges = %v, want %v", edges, want)
	}
	if e := gs.WFG.Edges[0]; e.FromID != "wfg-process-1" || e.ToID != "wfg-process-2" {
		t.Errorf("edge 0 = %s -> %s", e.FromID, e.ToID)
	}
	if e := gs.WFG.Edges[1]; e.FromID != "wfg-process-2" || e.ToID != "wfg-process-1" {
		t.Errorf("edge 1 = %s -> %s", e.FromID, e.ToID)
	}
	for _, g := range []Graph{gs.RAG, gs.WFG} {
		for _, n := range g.Nodes {
			if n.Style.Border != ColorDeadlockBorder {
				t.Errorf("%s border = %s, want %s", n.ID, n.Style.Border, ColorDeadlockBorder)
			}
		}
	}
	if gs.WFG.Nodes[0].Label != "P1" {
		t.Errorf("label = %q, want P1", gs.WFG.Nodes[0].Label)
	}
	if !strings.HasPrefix(gs.WFG.Banner(), "DEADLOCK DETECTED") {
		t.Errorf("banner = %q", gs.WFG.Banner())
	}
}

func TestBuildGraphs_MalformedEdges(t *testing.T) {
	v := fixtureSafe()
	v.RAGEdges = append([]backend.RAGEdge{
		// dangling process
		{Type: "request", From: backend.Endpoint{ID: 9, Type: "process"}, To: backend.Endpoint{ID: 1, Type: "resource"}, Units: 1},
		// zero units
		{Type: "hold", From: backend.Endpoint{ID: 1, Type: "resource"}, To: backend.Endpoint{ID: 2, Type: "process"}, Units: 0},
		// wrong direction
		{Type: "hold", From: backend.Endpoint{ID: 1, Type: "process"}, To: backend.Endpoint{ID: 1, Type: "resource"}, Units: 1},
		// unknown kind
		{Type: "borrow", From: backend.Endpoint{ID: 1, Type: "process"}, To: backend.Endpoint{ID: 1, Type: "resource"}, Units: 1},
	}, v.RAGEdges...)
	v.WaitForGraph = []backend.WFGEdge{{ProcessID: 1, WaitingFor: []backend.WaitRef{{ProcessID: 42}, {ProcessID: 2}}}}

	gs := BuildGraphs(v)

	_, edges := ids(gs.RAG)
	if want := []string{"hold-2", "request-1"}; !reflect.DeepEqual(edges, want) {
		t.Errorf("RAG edges = %v, want %v", edges, want)
	}
	_, wfgEdges := ids(gs.WFG)
	if want := []string{"wfg-edge-0-1"}; !reflect.DeepEqual(wfgEdges, want) {
		t.Errorf("WFG edges = %v, want %v", wfgEdges, want)
	}

	got := map[string]Reason{}
	for _, d := range gs.Diagnostics {
		got[d.EdgeID] = d.Reason
	}
	want := map[string]Reason{
		"rag-3":        ReasonUnknownKind,
		"hold-0":       ReasonInvalidUnits,
		"hold-1":       ReasonEndpointMismatch,
		"request-0":    ReasonUnknownProcess,
		"wfg-edge-0-0": ReasonUnknownProcess,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("diagnostics = %v, want %v", got, want)
	}
}

func TestBuildGraphs_DuplicateIDs(t *testing.T) {
	v := backend.DeadlockView{
		Processes: []backend.Process{{ID: 1, Name: "first"}, {ID: 2}, {ID: 1, Name: "last"}},
		Resources: []backend.Resource{{ID: 5, Total: 1}, {ID: 5, Total: 3, Available: 2}},
	}
	gs := BuildGraphs(v)

	nodes, _ := ids(gs.RAG)
	if want := []string{"process-1", "process-2", "resource-5"}; !reflect.DeepEqual(nodes, want) {
		t.Fatalf("nodes = %v, want %v", nodes, want)
	}
	if gs.RAG.Nodes[0].Label != "last" || gs.WFG.Nodes[0].Label != "last" {
		t.Errorf("duplicate process should take the last label")
	}
	if gs.RAG.Nodes[2].Properties["total"] != "3" {
		t.Errorf("duplicate resource should take the last totals: %v", gs.RAG.Nodes[2].Properties)
	}
	if len(gs.Diagnostics) != 2 {
		t.Errorf("diagnostics = %v, want 2 duplicate_node", gs.Diagnostics)
	}
}

func TestEdgeStyles(t *testing.T) {
	tests := []struct {
		edge     EdgeType
		stroke   string
		animated bool
	}{
		{EdgeHold, "#9333ea", false},
		{EdgeRequest, "#ea580c", true},
		{EdgeWaitFor, "#dc2626", true},
	}
	for _, tt := range tests {
		s := EdgeStyleFor(tt.edge)
		if s.Stroke != tt.stroke || s.Animated != tt.animated || s.StrokeWidth != 3 || s.Marker != markerClosed {
			t.Errorf("%s style = %+v", tt.edge, s)
		}
	}
	if NodeStyleFor(NodeProcess, false).Border != "#16a34a" {
		t.Error("process border")
	}
	if NodeStyleFor(NodeResource, false).Border != "#2563eb" {
		t.Error("resource border")
	}
}

func TestLayoutRAG_Rows(t *testing.T) {
	gs := Build(fixtureSafe())
	for _, n := range gs.RAG.Nodes {
		want := RowProcessY
		if n.Type == NodeResource {
			want = RowResourceY
		}
		if n.Position.Y != want {
			t.Errorf("%s y = %v, want %v", n.ID, n.Position.Y, want)
		}
	}
	if p := gs.RAG.Nodes[1].Position; p.X != 300 {
		t.Errorf("process-2 x = %v, want 300", p.X)
	}
	if p := gs.RAG.Nodes[2].Position; p.X != 100 {
		t.Errorf("resource-1 x = %v, want 100", p.X)
	}
}

func TestLayoutRAG_StrictlyIncreasing(t *testing.T) {
	for n := 0; n <= 12; n++ {
		nodes := make([]Node, n)
		for i := range nodes {
			nodes[i] = Node{ID: ProcessNodeID(i), Type: NodeProcess}
		}
		out := LayoutRAG(nodes)
		for i := 1; i < len(out); i++ {
			if out[i].Position.X <= out[i-1].Position.X {
				t.Fatalf("n=%d: x not strictly increasing at %d", n, i)
			}
		}
		if !reflect.DeepEqual(out, LayoutRAG(nodes)) {
			t.Fatalf("n=%d: layout not deterministic", n)
		}
	}
}

func TestLayoutWFG_OnCircle(t *testing.T) {
	if out := LayoutWFG(nil); len(out) != 0 {
		t.Fatalf("empty layout = %v", out)
	}

	for n := 1; n <= 16; n++ {
		nodes := make([]Node, n)
		out := LayoutWFG(nodes)
		sum := 0.0
		for _, node := range out {
			dx := node.Position.X - CircleCenterX
			dy := node.Position.Y - CircleCenterY
			sum += dx*dx + dy*dy
		}
		want := float64(n) * CircleRadius * CircleRadius
		if math.Abs(sum-want) > 1e-6*want {
			t.Errorf("n=%d: sum of squared distances = %v, want %v", n, sum, want)
		}
		top := out[0].Position
		if math.Abs(top.X-CircleCenterX) > 1e-9 || math.Abs(top.Y-(CircleCenterY-CircleRadius)) > 1e-9 {
			t.Errorf("n=%d: node 0 at %+v, want top of circle", n, top)
		}
	}
}

func TestLayoutDoesNotMutateInput(t *testing.T) {
	nodes := []Node{{ID: "a", Type: NodeProcess}}
	_ = LayoutRAG(nodes)
	_ = LayoutWFG(nodes)
	if nodes[0].Position != (Position{}) {
		t.Fatal("layout mutated its input")
	}
}

func TestExport(t *testing.T) {
	gs := Build(fixtureSafe())

	dot, err := Export(gs.RAG, FormatDOT)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`digraph "rag"`,
		`"resource-1" -> "process-1" [id="hold-0"`,
		`"process-2" -> "resource-1" [id="request-0", color="#ea580c", penwidth=3, style=dashed`,
		`shape=box`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}

	format, err := ParseFormat("Mermaid")
	if err != nil {
		t.Fatal(err)
	}
	mm, _ := Export(gs.RAG, format)
	for _, want := range []string{
		"graph TD;",
		`process_1(("A"));`,
		`resource_1["R1"];`,
		"resource_1 --> process_1;",
		"process_2 -.-> resource_1;",
		"linkStyle 1 stroke:#ea580c,stroke-width:3px;",
	} {
		if !strings.Contains(mm, want) {
			t.Errorf("Mermaid missing %q:\n%s", want, mm)
		}
	}

	if _, err := ParseFormat("svg"); err == nil {
		t.Error("expected error for svg")
	}
	if _, err := ParseKind("dag"); err == nil {
		t.Error("expected error for dag")
	}
}
