package graph

import "math"

// Row layout constants for the RAG.
const (
	RowProcessY  = 80.0
	RowResourceY = 280.0
	RowStartX    = 100.0
	RowSpacing   = 200.0
)

// Circular layout constants for the WFG.
const (
	CircleCenterX = 400.0
	CircleCenterY = 250.0
	CircleRadius  = 150.0
)

// LayoutRAG places processes on one row and resources on a second row
// below it. The k-th node of each type lands at RowStartX + k*RowSpacing.
// The input is not modified.
func LayoutRAG(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	var procs, res int
	for i, n := range nodes {
		switch n.Type {
		case NodeResource:
			n.Position = Position{X: RowStartX + float64(res)*RowSpacing, Y: RowResourceY}
			res++
		default:
			n.Position = Position{X: RowStartX + float64(procs)*RowSpacing, Y: RowProcessY}
			procs++
		}
		out[i] = n
	}
	return out
}

// LayoutWFG spreads nodes evenly on a circle, clockwise from the top.
// The input is not modified.
func LayoutWFG(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	if len(nodes) == 0 {
		return out
	}
	step := 2 * math.Pi / float64(len(nodes))
	for k, n := range nodes {
		theta := float64(k)*step - math.Pi/2
		n.Position = Position{
			X: CircleCenterX + CircleRadius*math.Cos(theta),
			Y: CircleCenterY + CircleRadius*math.Sin(theta),
		}
		out[k] = n
	}
	return out
}

// Layout positions both graphs and returns the result as a new value.
func Layout(gs Graphs) Graphs {
	gs.RAG.Nodes = LayoutRAG(gs.RAG.Nodes)
	gs.WFG.Nodes = LayoutWFG(gs.WFG.Nodes)
	return gs
}
