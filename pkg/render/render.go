// Package render draws graphs, timelines and schedule tables for a
// terminal, using the colour metadata the builders attach.
package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/graph"
	"github.com/rmax-ai/osmon/pkg/timeline"
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	headerStyle = lipgloss.NewStyle().Bold(true)

	bannerStyles = map[graph.Status]lipgloss.Style{
		graph.StatusDeadlock: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(graph.ColorDeadlockBorder)),
		graph.StatusSafe:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(graph.ColorProcessBorder)),
		graph.StatusIdle:     subtleStyle,
	}
)

// Banner renders the status line of a graph.
func Banner(g graph.Graph) string {
	return bannerStyles[g.Status()].Render(g.Banner())
}

func nodeBox(n graph.Node) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(n.Style.Border)).
		Padding(0, 1)
	if n.Type == graph.NodeResource {
		style = style.Border(lipgloss.NormalBorder())
	}
	label := n.Label
	if total, ok := n.Properties["total"]; ok {
		label += " " + n.Properties["available"] + "/" + total
	}
	return style.Render(label)
}

// column maps a node x positions onto terminal columns of a fixed cell width.
func column(x float64) int {
	c := int(math.Round((x - graph.RowStartX) / graph.RowSpacing))
	if c < 0 {
		return 0
	}
	return c
}

// RAG draws the resource allocation graph as two rows of boxes, processes
// above resources in layout order, followed by the edge list.
func RAG(g graph.Graph) string {
	if g.Empty() {
		return subtleStyle.Render(g.Placeholder())
	}

	var procs, res []graph.Node
	for _, n := range g.Nodes {
		if n.Type == graph.NodeProcess {
			procs = append(procs, n)
		} else {
			res = append(res, n)
		}
	}

	var b strings.Builder
	b.WriteString(Banner(g) + "\n\n")
	b.WriteString(nodeRow(procs) + "\n")
	b.WriteString(nodeRow(res) + "\n\n")
	b.WriteString(Edges(g))
	return b.String()
}

func nodeRow(nodes []graph.Node) string {
	if len(nodes) == 0 {
		return ""
	}
	const cellWidth = 14
	sorted := append([]graph.Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position.X < sorted[j].Position.X })

	boxes := make([]string, 0, len(sorted))
	col := 0
	for _, n := range sorted {
		for c := column(n.Position.X); col < c; col++ {
			boxes = append(boxes, strings.Repeat(" ", cellWidth))
		}
		boxes = append(boxes, lipgloss.NewStyle().Width(cellWidth).Render(nodeBox(n)))
		col++
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// WFG draws the wait-for graph as its processes in circle order followed by
// the wait edges.
func WFG(g graph.Graph) string {
	if g.Empty() {
		return subtleStyle.Render(g.Placeholder())
	}
	var b strings.Builder
	b.WriteString(Banner(g) + "\n\n")
	boxes := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		boxes = append(boxes, nodeBox(n))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...) + "\n\n")
	b.WriteString(Edges(g))
	return b.String()
}

// Edges lists the edges of g, one per line, coloured by edge type.
// Animated edges are drawn dashed.
func Edges(g graph.Graph) string {
	if len(g.Edges) == 0 {
		return subtleStyle.Render("no edges")
	}
	labels := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		labels[n.ID] = n.Label
	}

	var b strings.Builder
	for _, e := range g.Edges {
		shaft := "───"
		if e.Style.Animated {
			shaft = "╌╌╌"
		}
		kind := string(e.Type)
		if e.Units > 0 {
			kind += "(" + strconv.Itoa(e.Units) + ")"
		}
		arrow := lipgloss.NewStyle().Foreground(lipgloss.Color(e.Style.Stroke)).
			Render(shaft + " " + kind + " " + shaft + "▶")
		fmt.Fprintf(&b, "%-10s %s %s\n", labels[e.FromID], arrow, labels[e.ToID])
	}
	return strings.TrimRight(b.String(), "\n")
}

// Diagnostics lists the edges and nodes the builder rejected.
func Diagnostics(ds []graph.Diagnostic) string {
	if len(ds) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%d diagnostics", len(ds))) + "\n")
	for _, d := range ds {
		b.WriteString(subtleStyle.Render("• "+d.String()) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Timeline draws one Gantt row per entry, scaling each tick to enough
// columns that the chart fills width.
func Timeline(c timeline.Chart, width int) string {
	if c.IsEmpty() {
		return subtleStyle.Render("No schedule to display")
	}
	const labelWidth = 8
	ticks := c.MaxTime
	if ticks <= 0 || c.Truncated {
		ticks = 1
	}
	unit := (width - labelWidth - 24) / ticks
	if unit < 1 {
		unit = 1
	}

	idle := lipgloss.NewStyle().Foreground(lipgloss.Color(timeline.IdleColor))
	var b strings.Builder
	for _, row := range c.Rows {
		exec := lipgloss.NewStyle().Foreground(lipgloss.Color(row.Color))
		var bar strings.Builder
		for _, cell := range row.Cells {
			n := int(math.Round(cell.Width * float64(ticks*unit)))
			if n < 1 {
				n = 1
			}
			if cell.Kind == timeline.CellExec {
				bar.WriteString(exec.Render(strings.Repeat("█", n)))
			} else {
				bar.WriteString(idle.Render(strings.Repeat("░", n)))
			}
		}
		fmt.Fprintf(&b, "%-*s %s %s\n", labelWidth, truncate(row.Label, labelWidth), bar.String(), subtleStyle.Render(row.Caption))
	}
	if c.Truncated {
		fmt.Fprintf(&b, "%s\n", subtleStyle.Render(fmt.Sprintf("schedule spans %d ticks, showing one bar per process", c.MaxTime)))
	}
	b.WriteString(axis(labelWidth, ticks, unit))
	return b.String()
}

func axis(offset, ticks, unit int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", offset+1))
	step := 1
	for step*unit < 4 {
		step++
	}
	for t := 0; t <= ticks; t += step {
		s := strconv.Itoa(t)
		b.WriteString(s)
		if pad := step*unit - len(s); pad > 0 && t+step <= ticks {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	return subtleStyle.Render(b.String())
}

// Schedule renders the schedule summary and the per-process table.
func Schedule(s engine.ScheduleSummary, processes []backend.ProcessDetail) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Scheduling: "+s.Algorithm) + "\n")
	fmt.Fprintf(&b, "processes %d  avg waiting %.2f  avg turnaround %.2f\n\n",
		s.ProcessCount, s.AverageWaitingTime, s.AverageTurnaroundTime)
	if len(processes) == 0 {
		b.WriteString(subtleStyle.Render("No processes scheduled"))
		return b.String()
	}

	cols := []string{"PID", "Name", "Arrival", "Burst", "Priority", "Start", "Completion", "Waiting", "Turnaround"}
	b.WriteString(headerStyle.Render(formatRow(cols)) + "\n")
	for _, p := range processes {
		b.WriteString(formatRow([]string{
			strconv.Itoa(p.PID), truncate(p.ProcessName, 10),
			strconv.Itoa(p.ArrivalTime), strconv.Itoa(p.BurstTime), strconv.Itoa(p.Priority),
			strconv.Itoa(p.StartTime), strconv.Itoa(p.CompletionTime),
			strconv.Itoa(p.WaitingTime), strconv.Itoa(p.TurnaroundTime),
		}) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRow(cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&b, "%-11s", c)
	}
	return strings.TrimRight(b.String(), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Stats renders the backend's deadlock verdict.
func Stats(s backend.DeadlockStats) string {
	status := s.Status
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf("backend status: %s  safe state: %v", status, s.SafeState)
}

// Dashboard renders the whole View the way the web dashboard stacks it.
func Dashboard(v engine.View, width int) string {
	sections := []string{
		titleStyle.Render("Resource Allocation Graph"),
		RAG(v.Graphs.RAG),
		"",
		titleStyle.Render("Wait-For Graph"),
		WFG(v.Graphs.WFG),
		"",
		Stats(v.Stats),
	}
	if d := Diagnostics(v.Graphs.Diagnostics); d != "" {
		sections = append(sections, "", d)
	}
	sections = append(sections,
		"",
		titleStyle.Render("Gantt Chart"),
		Timeline(v.Timeline, width),
		"",
		Schedule(v.Summary, v.Processes),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
