package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProcessLabel is the display name for a process: its name, or P<id>.
func ProcessLabel(id int, name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return "P" + strconv.Itoa(id)
}

// ResourceLabel is the display name for a resource: its name, or R<id>.
func ResourceLabel(id int, name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return "R" + strconv.Itoa(id)
}

// DecodeDeadlockView reads a visualize payload and normalizes it.
// Absent or null fields become empty collections and false.
func DecodeDeadlockView(r io.Reader) (DeadlockView, error) {
	var v DeadlockView
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return DeadlockView{}, fmt.Errorf("decode deadlock view: %w", err)
	}
	return Normalize(v), nil
}

// DecodeScheduleResult reads a scheduler payload and normalizes it.
func DecodeScheduleResult(r io.Reader) (ScheduleResult, error) {
	var res ScheduleResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return ScheduleResult{}, fmt.Errorf("decode schedule result: %w", err)
	}
	return NormalizeSchedule(res), nil
}

// Normalize is the single place where loosely shaped backend data is
// coerced into the strict form the graph builder expects. It never
// mutates its argument and is idempotent.
//
// Only presentation defaults are filled here (empty collections, labels,
// lowercased tags, clamped availability). Referential checks stay with the
// builder so that they surface as diagnostics.
func Normalize(v DeadlockView) DeadlockView {
	out := DeadlockView{
		RAGEdges:     make([]RAGEdge, 0, len(v.RAGEdges)),
		WaitForGraph: make([]WFGEdge, 0, len(v.WaitForGraph)),
		Processes:    make([]Process, 0, len(v.Processes)),
		Resources:    make([]Resource, 0, len(v.Resources)),
		HasDeadlock:  v.HasDeadlock,
	}

	for _, p := range v.Processes {
		np := Process{
			ID:        p.ID,
			Name:      ProcessLabel(p.ID, p.Name),
			Allocated: append([]ResourceAmount(nil), p.Allocated...),
			Needed:    append([]ResourceAmount(nil), p.Needed...),
		}
		out.Processes = append(out.Processes, np)
	}

	for _, r := range v.Resources {
		nr := Resource{
			ID:        r.ID,
			Name:      ResourceLabel(r.ID, r.Name),
			Total:     r.Total,
			Available: r.Available,
		}
		if nr.Total < 0 {
			nr.Total = 0
		}
		if nr.Available < 0 {
			nr.Available = 0
		}
		if nr.Available > nr.Total {
			nr.Available = nr.Total
		}
		out.Resources = append(out.Resources, nr)
	}

	for _, e := range v.RAGEdges {
		ne := RAGEdge{
			Type:  RAGEdgeKind(strings.ToLower(strings.TrimSpace(string(e.Type)))),
			From:  normalizeEndpoint(e.From),
			To:    normalizeEndpoint(e.To),
			Units: e.Units,
		}
		out.RAGEdges = append(out.RAGEdges, ne)
	}

	for _, w := range v.WaitForGraph {
		nw := WFGEdge{
			ProcessID:   w.ProcessID,
			ProcessName: ProcessLabel(w.ProcessID, w.ProcessName),
			WaitingFor:  make([]WaitRef, 0, len(w.WaitingFor)),
		}
		for _, ref := range w.WaitingFor {
			nw.WaitingFor = append(nw.WaitingFor, WaitRef{
				ProcessID:   ref.ProcessID,
				ProcessName: ProcessLabel(ref.ProcessID, ref.ProcessName),
			})
		}
		out.WaitForGraph = append(out.WaitForGraph, nw)
	}

	return out
}

// NormalizeSchedule fills empty collections and display names.
func NormalizeSchedule(res ScheduleResult) ScheduleResult {
	out := res
	out.Processes = make([]ProcessDetail, 0, len(res.Processes))
	for _, p := range res.Processes {
		p.ProcessName = ProcessLabel(p.PID, p.ProcessName)
		out.Processes = append(out.Processes, p)
	}
	out.GanttChart = make([]GanttEntry, 0, len(res.GanttChart))
	for _, g := range res.GanttChart {
		g.ProcessName = ProcessLabel(g.ProcessID, g.ProcessName)
		out.GanttChart = append(out.GanttChart, g)
	}
	if strings.TrimSpace(out.Algorithm) == "" {
		out.Algorithm = "None"
	}
	if out.ProcessCount == 0 {
		out.ProcessCount = len(out.Processes)
	}
	return out
}

func normalizeEndpoint(e Endpoint) Endpoint {
	out := Endpoint{
		ID:   e.ID,
		Type: EndpointType(strings.ToLower(strings.TrimSpace(string(e.Type)))),
		Name: strings.TrimSpace(e.Name),
	}
	switch out.Type {
	case EndpointProcess:
		out.Name = ProcessLabel(out.ID, out.Name)
	case EndpointResource:
		out.Name = ResourceLabel(out.ID, out.Name)
	}
	return out
}
