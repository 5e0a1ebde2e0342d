// Package timeline turns the sparse execution intervals of a scheduling run
// into dense, per-process rows of unit cells for a Gantt chart.
package timeline

import (
	"fmt"
	"strconv"

	"github.com/rmax-ai/osmon/pkg/backend"
)

// CellKind distinguishes CPU time used by the row's process from idle time.
type CellKind string

const (
	CellIdle CellKind = "idle"
	CellExec CellKind = "exec"
)

// Palette cycles through six colours by process id.
var Palette = []string{
	"#3b82f6", // blue
	"#22c55e", // green
	"#f97316", // orange
	"#a855f7", // purple
	"#ec4899", // pink
	"#06b6d4", // cyan
}

// IdleColor is the fill of idle cells.
const IdleColor = "#e5e7eb"

// MaxTicks bounds the time axis that gets expanded into unit cells. Charts
// spanning more ticks are returned with Truncated set and one full-width
// exec cell per row.
const MaxTicks = 10_000

// Cell is one scheduling tick of a row. Width is the fraction of the row it
// occupies, so all rows share one time axis.
type Cell struct {
	Kind  CellKind `json:"kind"`
	Tick  int      `json:"tick"`
	Label string   `json:"label,omitempty"`
	Width float64  `json:"width"`
}

// Row is the timeline of one Gantt entry.
type Row struct {
	ProcessID int    `json:"process_id"`
	Label     string `json:"label"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Duration  int    `json:"duration"`
	Color     string `json:"color"`
	Caption   string `json:"caption"`
	Cells     []Cell `json:"cells"`
}

// Chart is a reconstructed Gantt chart.
type Chart struct {
	MaxTime   int   `json:"max_time"`
	Truncated bool  `json:"truncated,omitempty"`
	Rows      []Row `json:"rows"`
}

// Empty returns a chart with no rows.
func Empty() Chart {
	return Chart{Rows: make([]Row, 0)}
}

// IsEmpty reports whether there is no schedule to draw.
func (c Chart) IsEmpty() bool {
	return len(c.Rows) == 0
}

// ColorFor picks the palette colour of a process id.
func ColorFor(processID int) string {
	i := processID % len(Palette)
	if i < 0 {
		i += len(Palette)
	}
	return Palette[i]
}

// Reconstruct builds one row per entry, in input order. It does not sort.
// maxTime is the largest end time seen; every row gets idle cells before
// its start, exec cells for [start, end) with the pid on the first, and
// idle cells up to maxTime.
//
// When maxTime is not positive, or above MaxTicks, each row is a single
// full-width exec cell. Starts below zero are clipped to zero and inverted entries produce no
// exec cells.
func Reconstruct(entries []backend.GanttEntry) Chart {
	chart := Empty()
	if len(entries) == 0 {
		return chart
	}

	for _, e := range entries {
		if e.EndTime > chart.MaxTime {
			chart.MaxTime = e.EndTime
		}
	}
	chart.Truncated = chart.MaxTime > MaxTicks

	for _, e := range entries {
		label := backend.ProcessLabel(e.ProcessID, e.ProcessName)
		row := Row{
			ProcessID: e.ProcessID,
			Label:     label,
			Start:     e.StartTime,
			End:       e.EndTime,
			Duration:  e.EndTime - e.StartTime,
			Color:     ColorFor(e.ProcessID),
			Caption:   fmt.Sprintf("%d → %d (%d units)", e.StartTime, e.EndTime, e.EndTime-e.StartTime),
		}
		if chart.MaxTime <= 0 || chart.Truncated {
			row.Cells = []Cell{{Kind: CellExec, Tick: 0, Label: strconv.Itoa(e.ProcessID), Width: 1}}
		} else {
			row.Cells = cells(e, chart.MaxTime)
		}
		chart.Rows = append(chart.Rows, row)
	}
	return chart
}

func cells(e backend.GanttEntry, maxTime int) []Cell {
	width := 1 / float64(maxTime)
	start := clamp(e.StartTime, 0, maxTime)
	end := clamp(e.EndTime, start, maxTime)

	out := make([]Cell, 0, maxTime)
	for t := 0; t < start; t++ {
		out = append(out, Cell{Kind: CellIdle, Tick: t, Width: width})
	}
	for t := start; t < end; t++ {
		c := Cell{Kind: CellExec, Tick: t, Width: width}
		if t == start {
			c.Label = strconv.Itoa(e.ProcessID)
		}
		out = append(out, c)
	}
	for t := end; t < maxTime; t++ {
		out = append(out, Cell{Kind: CellIdle, Tick: t, Width: width})
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Counts returns the number of exec and idle cells of a row.
func (r Row) Counts() (exec, idle int) {
	for _, c := range r.Cells {
		if c.Kind == CellExec {
			exec++
		} else {
			idle++
		}
	}
	return exec, idle
}
