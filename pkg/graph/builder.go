package graph

import (
	"fmt"
	"strconv"

	"github.com/rmax-ai/osmon/pkg/backend"
)

// ProcessNodeID is the RAG node id of a process.
func ProcessNodeID(id int) string { return "process-" + strconv.Itoa(id) }

// ResourceNodeID is the RAG node id of a resource.
func ResourceNodeID(id int) string { return "resource-" + strconv.Itoa(id) }

// WFGNodeID is the WFG node id of a process.
func WFGNodeID(id int) string { return "wfg-process-" + strconv.Itoa(id) }

// BuildGraphs turns one backend snapshot into the RAG and WFG models. It is
// pure: the same snapshot always yields the same node and edge order, and
// malformed edges are reported as diagnostics instead of errors.
//
// Edge ids are derived from the position inside the hold/request partition
// (or the WFG nesting) before validation, so dropping an edge never renames
// the ones after it.
func BuildGraphs(v backend.DeadlockView) Graphs {
	v = backend.Normalize(v)

	b := &builder{
		rag:         NewGraph(KindRAG),
		wfg:         NewGraph(KindWFG),
		processes:   make(map[int]int),
		resources:   make(map[int]int),
		wfgNodes:    make(map[int]int),
		diagnostics: make([]Diagnostic, 0),
	}
	b.rag.HasDeadlock = v.HasDeadlock
	b.wfg.HasDeadlock = v.HasDeadlock

	for _, p := range v.Processes {
		b.addProcess(p)
	}
	for _, r := range v.Resources {
		b.addResource(r)
	}

	var holds, requests []backend.RAGEdge
	for i, e := range v.RAGEdges {
		switch e.Type {
		case backend.RAGEdgeHold:
			holds = append(holds, e)
		case backend.RAGEdgeRequest:
			requests = append(requests, e)
		default:
			b.drop(KindRAG, "rag-"+strconv.Itoa(i), ReasonUnknownKind,
				fmt.Sprintf("unknown edge kind %q", e.Type))
		}
	}
	for i, e := range holds {
		b.addRAGEdge("hold-"+strconv.Itoa(i), EdgeHold, e)
	}
	for i, e := range requests {
		b.addRAGEdge("request-"+strconv.Itoa(i), EdgeRequest, e)
	}

	for outer, w := range v.WaitForGraph {
		for inner, ref := range w.WaitingFor {
			b.addWaitEdge(fmt.Sprintf("wfg-edge-%d-%d", outer, inner), w.ProcessID, ref.ProcessID)
		}
	}

	for i := range b.rag.Nodes {
		n := &b.rag.Nodes[i]
		n.Style = NodeStyleFor(n.Type, v.HasDeadlock)
	}
	for i := range b.wfg.Nodes {
		n := &b.wfg.Nodes[i]
		n.Style = NodeStyleFor(n.Type, v.HasDeadlock)
	}

	return Graphs{
		RAG:         b.rag,
		WFG:         b.wfg,
		HasDeadlock: v.HasDeadlock,
		Diagnostics: b.diagnostics,
	}
}

// Build is BuildGraphs followed by Layout.
func Build(v backend.DeadlockView) Graphs {
	return Layout(BuildGraphs(v))
}

// builder keeps node slots in arrival order; the maps point an entity id at
// its slot so duplicates collapse in place.
type builder struct {
	rag, wfg    Graph
	processes   map[int]int
	resources   map[int]int
	wfgNodes    map[int]int
	diagnostics []Diagnostic
}

func (b *builder) addProcess(p backend.Process) {
	props := map[string]string{
		"allocated": strconv.Itoa(sumAmounts(p.Allocated)),
		"needed":    strconv.Itoa(sumAmounts(p.Needed)),
	}
	node := Node{
		ID:         ProcessNodeID(p.ID),
		Type:       NodeProcess,
		Label:      p.Name,
		EntityID:   p.ID,
		Properties: props,
	}
	if slot, ok := b.processes[p.ID]; ok {
		b.rag.Nodes[slot] = node
		b.wfg.Nodes[b.wfgNodes[p.ID]] = Node{ID: WFGNodeID(p.ID), Type: NodeProcess, Label: p.Name, EntityID: p.ID}
		b.diagnostics = append(b.diagnostics, Diagnostic{
			Graph:   KindRAG,
			NodeID:  node.ID,
			Reason:  ReasonDuplicateNode,
			Message: "duplicate process id, last occurrence wins",
		})
		return
	}
	b.processes[p.ID] = len(b.rag.Nodes)
	b.rag.Nodes = append(b.rag.Nodes, node)
	b.wfgNodes[p.ID] = len(b.wfg.Nodes)
	b.wfg.Nodes = append(b.wfg.Nodes, Node{ID: WFGNodeID(p.ID), Type: NodeProcess, Label: p.Name, EntityID: p.ID})
}

func (b *builder) addResource(r backend.Resource) {
	node := Node{
		ID:       ResourceNodeID(r.ID),
		Type:     NodeResource,
		Label:    r.Name,
		EntityID: r.ID,
		Properties: map[string]string{
			"total":     strconv.Itoa(r.Total),
			"available": strconv.Itoa(r.Available),
		},
	}
	if slot, ok := b.resources[r.ID]; ok {
		b.rag.Nodes[slot] = node
		b.diagnostics = append(b.diagnostics, Diagnostic{
			Graph:   KindRAG,
			NodeID:  node.ID,
			Reason:  ReasonDuplicateNode,
			Message: "duplicate resource id, last occurrence wins",
		})
		return
	}
	b.resources[r.ID] = len(b.rag.Nodes)
	b.rag.Nodes = append(b.rag.Nodes, node)
}

func (b *builder) addRAGEdge(id string, t EdgeType, e backend.RAGEdge) {
	if e.Units <= 0 {
		b.drop(KindRAG, id, ReasonInvalidUnits, fmt.Sprintf("units must be positive, got %d", e.Units))
		return
	}

	// hold: resource -> process, request: process -> resource
	wantFrom, wantTo := backend.EndpointResource, backend.EndpointProcess
	if t == EdgeRequest {
		wantFrom, wantTo = backend.EndpointProcess, backend.EndpointResource
	}
	if e.From.Type != wantFrom || e.To.Type != wantTo {
		b.drop(KindRAG, id, ReasonEndpointMismatch,
			fmt.Sprintf("%s edge must go %s -> %s, got %s -> %s", t, wantFrom, wantTo, e.From.Type, e.To.Type))
		return
	}

	fromID, ok := b.endpoint(KindRAG, id, e.From)
	if !ok {
		return
	}
	toID, ok := b.endpoint(KindRAG, id, e.To)
	if !ok {
		return
	}

	b.rag.Edges = append(b.rag.Edges, Edge{
		ID:     id,
		FromID: fromID,
		ToID:   toID,
		Type:   t,
		Units:  e.Units,
		Style:  EdgeStyleFor(t),
	})
}

func (b *builder) endpoint(kind Kind, edgeID string, ep backend.Endpoint) (string, bool) {
	if ep.Type == backend.EndpointProcess {
		if _, ok := b.processes[ep.ID]; !ok {
			b.drop(kind, edgeID, ReasonUnknownProcess, fmt.Sprintf("process %d is not in the process set", ep.ID))
			return "", false
		}
		return ProcessNodeID(ep.ID), true
	}
	if _, ok := b.resources[ep.ID]; !ok {
		b.drop(kind, edgeID, ReasonUnknownResource, fmt.Sprintf("resource %d is not in the resource set", ep.ID))
		return "", false
	}
	return ResourceNodeID(ep.ID), true
}

func (b *builder) addWaitEdge(id string, waiter, holder int) {
	for _, pid := range []int{waiter, holder} {
		if _, ok := b.wfgNodes[pid]; !ok {
			b.drop(KindWFG, id, ReasonUnknownProcess, fmt.Sprintf("process %d is not in the process set", pid))
			return
		}
	}
	b.wfg.Edges = append(b.wfg.Edges, Edge{
		ID:     id,
		FromID: WFGNodeID(waiter),
		ToID:   WFGNodeID(holder),
		Type:   EdgeWaitFor,
		Style:  EdgeStyleFor(EdgeWaitFor),
	})
}

func (b *builder) drop(kind Kind, edgeID string, reason Reason, msg string) {
	b.diagnostics = append(b.diagnostics, Diagnostic{
		Graph:   kind,
		EdgeID:  edgeID,
		Reason:  reason,
		Message: msg,
	})
}

func sumAmounts(xs []backend.ResourceAmount) int {
	total := 0
	for _, x := range xs {
		total += x.Amount
	}
	return total
}
