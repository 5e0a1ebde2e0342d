package graph

import "fmt"

// Kind identifies which of the two concurrency graphs a value belongs to.
type Kind string

const (
	KindRAG Kind = "rag" // resource allocation graph
	KindWFG Kind = "wfg" // wait-for graph
)

// ParseKind accepts "rag" or "wfg".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRAG, KindWFG:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown graph kind %q", s)
}

// NodeType represents the semantic type of a node.
type NodeType string

const (
	NodeProcess  NodeType = "process"
	NodeResource NodeType = "resource"
)

// EdgeType represents the semantic relationship between two nodes.
type EdgeType string

const (
	EdgeHold    EdgeType = "hold"     // Resource -> Process
	EdgeRequest EdgeType = "request"  // Process -> Resource
	EdgeWaitFor EdgeType = "wait_for" // Waiter -> Holder
)

// Position is a node's top-left anchor in canvas units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeStyle carries the presentation metadata of a node.
type NodeStyle struct {
	Border string `json:"border"`
	Fill   string `json:"fill"`
	Shape  string `json:"shape"`
}

// EdgeStyle carries the presentation metadata of an edge.
type EdgeStyle struct {
	Stroke      string `json:"stroke"`
	StrokeWidth int    `json:"stroke_width"`
	Animated    bool   `json:"animated"`
	Marker      string `json:"marker"`
	MarkerSize  int    `json:"marker_size"`
	Curve       string `json:"curve"`
}

// Node represents a vertex in either graph.
type Node struct {
	ID         string            `json:"id"`
	Type       NodeType          `json:"type"`
	Label      string            `json:"label"`
	EntityID   int               `json:"entity_id"`
	Position   Position          `json:"position"`
	Style      NodeStyle         `json:"style"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Edge represents a directed connection between two nodes.
type Edge struct {
	ID     string    `json:"id"`
	FromID string    `json:"from_id"`
	ToID   string    `json:"to_id"`
	Type   EdgeType  `json:"type"`
	Units  int       `json:"units,omitempty"`
	Style  EdgeStyle `json:"style"`
}

// Graph is one positioned, styled graph. Nodes keep builder order, which is
// also the order the layout assigns slots in.
type Graph struct {
	Kind        Kind   `json:"kind"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
	HasDeadlock bool   `json:"has_deadlock"`
}

// NewGraph creates an empty graph of the given kind.
func NewGraph(kind Kind) Graph {
	return Graph{
		Kind:  kind,
		Nodes: make([]Node, 0),
		Edges: make([]Edge, 0),
	}
}

// Node looks a node up by id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Edge looks an edge up by id.
func (g Graph) Edge(id string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// CountEdges returns how many edges of type t the graph has.
func (g Graph) CountEdges(t EdgeType) int {
	n := 0
	for _, e := range g.Edges {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Empty reports whether there is nothing to draw.
func (g Graph) Empty() bool {
	return len(g.Nodes) == 0
}

// Status summarises the graph for banners and metrics.
type Status string

const (
	StatusDeadlock Status = "deadlock"
	StatusSafe     Status = "safe"
	StatusIdle     Status = "idle"
)

// Status is deadlock when the verdict says so, safe when there is at least
// one edge, and idle otherwise.
func (g Graph) Status() Status {
	switch {
	case g.HasDeadlock:
		return StatusDeadlock
	case len(g.Edges) > 0:
		return StatusSafe
	default:
		return StatusIdle
	}
}

// Banner is the alert line shown above the graph. Idle graphs have none.
func (g Graph) Banner() string {
	switch g.Status() {
	case StatusDeadlock:
		return "DEADLOCK DETECTED: Circular wait condition exists in the system!"
	case StatusSafe:
		if g.Kind == KindWFG {
			return "NO DEADLOCK: No circular wait condition detected"
		}
		return "NO DEADLOCK: System is in a safe state"
	}
	return ""
}

// Placeholder is what to display instead of an empty graph.
func (g Graph) Placeholder() string {
	if g.Kind == KindWFG {
		return "No processes to display"
	}
	return "No processes or resources to display"
}

// Graphs is the result of one build: both graphs plus whatever was dropped.
type Graphs struct {
	RAG         Graph        `json:"rag"`
	WFG         Graph        `json:"wfg"`
	HasDeadlock bool         `json:"has_deadlock"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Get returns the graph of the given kind.
func (gs Graphs) Get(kind Kind) Graph {
	if kind == KindWFG {
		return gs.WFG
	}
	return gs.RAG
}

// Reason classifies a Diagnostic.
type Reason string

const (
	ReasonInvalidUnits     Reason = "invalid_units"
	ReasonEndpointMismatch Reason = "endpoint_mismatch"
	ReasonUnknownKind      Reason = "unknown_kind"
	ReasonUnknownProcess   Reason = "unknown_process"
	ReasonUnknownResource  Reason = "unknown_resource"
	ReasonDuplicateNode    Reason = "duplicate_node"
)

// Diagnostic describes input the builder refused to render, or collapsed.
type Diagnostic struct {
	Graph   Kind   `json:"graph"`
	EdgeID  string `json:"edge_id,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	id := d.EdgeID
	if id == "" {
		id = d.NodeID
	}
	return fmt.Sprintf("%s %s: %s (%s)", d.Graph, id, d.Message, d.Reason)
}
