package graph

import (
	"bytes"
	"fmt"
	"strings"
)

// Format is a text export format.
type Format string

const (
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
)

// ParseFormat accepts "dot" or "mermaid".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatDOT:
		return FormatDOT, nil
	case FormatMermaid:
		return FormatMermaid, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Export renders g in the given format.
func Export(g Graph, f Format) (string, error) {
	switch f {
	case FormatDOT:
		return ExportDOT(g), nil
	case FormatMermaid:
		return ExportMermaid(g), nil
	}
	return "", fmt.Errorf("unknown export format %q", f)
}

// ExportDOT renders g as a Graphviz digraph. Node positions are emitted as
// pinned pos attributes so neato reproduces the dashboard layout.
func ExportDOT(g Graph) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "digraph %q {\n", string(g.Kind))
	fmt.Fprintf(&b, "  label=%q;\n", graphTitle(g))
	for _, n := range g.Nodes {
		shape := "circle"
		if n.Type == NodeResource {
			shape = "box"
		}
		// DOT points are y-up; the canvas is y-down.
		fmt.Fprintf(&b, "  %q [label=%q, shape=%s, color=%q, pos=\"%.1f,%.1f!\"];\n",
			n.ID, n.Label, shape, n.Style.Border, n.Position.X, -n.Position.Y)
	}
	for _, e := range g.Edges {
		attrs := fmt.Sprintf("color=%q, penwidth=%d", e.Style.Stroke, e.Style.StrokeWidth)
		if e.Style.Animated {
			attrs += ", style=dashed"
		}
		if e.Units > 0 {
			attrs += fmt.Sprintf(", label=\"%d\"", e.Units)
		}
		fmt.Fprintf(&b, "  %q -> %q [id=%q, %s];\n", e.FromID, e.ToID, e.ID, attrs)
	}
	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid renders g as a Mermaid flowchart. Mermaid ids may not
// contain hyphens, so they are rewritten to underscores.
func ExportMermaid(g Graph) string {
	var b bytes.Buffer
	b.WriteString("graph TD;\n")
	fmt.Fprintf(&b, "  subgraph %s[\"%s\"]\n", g.Kind, graphTitle(g))
	for _, n := range g.Nodes {
		if n.Type == NodeResource {
			fmt.Fprintf(&b, "    %s[\"%s\"];\n", mermaidID(n.ID), n.Label)
		} else {
			fmt.Fprintf(&b, "    %s((\"%s\"));\n", mermaidID(n.ID), n.Label)
		}
	}
	for i, e := range g.Edges {
		arrow := "-->"
		if e.Style.Animated {
			arrow = "-.->"
		}
		fmt.Fprintf(&b, "    %s %s %s;\n", mermaidID(e.FromID), arrow, mermaidID(e.ToID))
		fmt.Fprintf(&b, "    linkStyle %d stroke:%s,stroke-width:%dpx;\n", i, e.Style.Stroke, e.Style.StrokeWidth)
	}
	b.WriteString("  end\n")
	return b.String()
}

func mermaidID(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

func graphTitle(g Graph) string {
	title := "Resource Allocation Graph"
	if g.Kind == KindWFG {
		title = "Wait-For Graph"
	}
	if banner := g.Banner(); banner != "" {
		title += ": " + banner
	}
	return title
}
