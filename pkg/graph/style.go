package graph

// Palette used for node borders and edge strokes.
const (
	ColorHold           = "#9333ea"
	ColorRequest        = "#ea580c"
	ColorWaitFor        = "#dc2626"
	ColorDeadlockBorder = "#ef4444"
	ColorProcessBorder  = "#16a34a"
	ColorResourceBorder = "#2563eb"
	ColorProcessFill    = "#dcfce7"
	ColorResourceFill   = "#dbeafe"
)

const (
	edgeStrokeWidth = 3
	edgeMarkerSize  = 20
	markerClosed    = "arrow_closed"
	curveSmoothstep = "smoothstep"
)

// EdgeStyleFor returns the rendering metadata of an edge type. Request and
// wait-for edges animate to signal a pending acquisition.
func EdgeStyleFor(t EdgeType) EdgeStyle {
	s := EdgeStyle{
		StrokeWidth: edgeStrokeWidth,
		Marker:      markerClosed,
		MarkerSize:  edgeMarkerSize,
		Curve:       curveSmoothstep,
	}
	switch t {
	case EdgeHold:
		s.Stroke = ColorHold
	case EdgeRequest:
		s.Stroke = ColorRequest
		s.Animated = true
	case EdgeWaitFor:
		s.Stroke = ColorWaitFor
		s.Animated = true
	}
	return s
}

// NodeStyleFor returns the rendering metadata of a node. The deadlock
// verdict applies uniformly to every node of the graph.
func NodeStyleFor(t NodeType, hasDeadlock bool) NodeStyle {
	s := NodeStyle{Shape: "circle", Border: ColorProcessBorder, Fill: ColorProcessFill}
	if t == NodeResource {
		s = NodeStyle{Shape: "rect", Border: ColorResourceBorder, Fill: ColorResourceFill}
	}
	if hasDeadlock {
		s.Border = ColorDeadlockBorder
	}
	return s
}
