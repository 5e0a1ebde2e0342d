package api

import (
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/graph"
	"github.com/rmax-ai/osmon/pkg/timeline"
)

// HealthResponse matches GET /v1/health.
type HealthResponse struct {
	Status           string    `json:"status"` // ok, degraded
	Version          string    `json:"version"`
	LastPoll         time.Time `json:"last_poll,omitempty"`
	Failures         int       `json:"failures"`
	SchedulingActive bool      `json:"scheduling_active"`
	Leader           bool      `json:"leader"`
}

// GraphSummary is the banner line of one graph.
type GraphSummary struct {
	Status      graph.Status `json:"status"`
	Banner      string       `json:"banner"`
	Placeholder string       `json:"placeholder,omitempty"`
	Nodes       int          `json:"nodes"`
	Edges       int          `json:"edges"`
}

// GraphsResponse matches GET /v1/graphs.
type GraphsResponse struct {
	SnapshotID  string                      `json:"snapshot_id"`
	RAG         graph.Graph                 `json:"rag"`
	WFG         graph.Graph                 `json:"wfg"`
	HasDeadlock bool                        `json:"has_deadlock"`
	Diagnostics []graph.Diagnostic          `json:"diagnostics"`
	Stats       backend.DeadlockStats       `json:"stats"`
	Summaries   map[graph.Kind]GraphSummary `json:"summaries"`
}

// TimelineResponse matches GET /v1/timeline.
type TimelineResponse struct {
	SnapshotID       string                  `json:"snapshot_id"`
	Timeline         timeline.Chart          `json:"timeline"`
	Summary          engine.ScheduleSummary  `json:"summary"`
	Processes        []backend.ProcessDetail `json:"processes"`
	SchedulingActive bool                    `json:"scheduling_active"`
}

// SimulateResponse matches POST /v1/actions/deadlock/simulate.
type SimulateResponse struct {
	Result backend.SimulateResult `json:"result"`
	View   engine.View            `json:"view"`
}

// RecoverResponse matches POST /v1/actions/deadlock/recover.
type RecoverResponse struct {
	Result backend.RecoverResult `json:"result"`
	View   engine.View           `json:"view"`
}

// ArchivesResponse matches GET /v1/archives.
type ArchivesResponse struct {
	Keys []string `json:"keys"`
}

func summarize(g graph.Graph) GraphSummary {
	s := GraphSummary{
		Status: g.Status(),
		Banner: g.Banner(),
		Nodes:  len(g.Nodes),
		Edges:  len(g.Edges),
	}
	if g.Empty() {
		s.Placeholder = g.Placeholder()
	}
	return s
}

func graphsResponse(v engine.View) GraphsResponse {
	return GraphsResponse{
		SnapshotID:  v.SnapshotID,
		RAG:         v.Graphs.RAG,
		WFG:         v.Graphs.WFG,
		HasDeadlock: v.Graphs.HasDeadlock,
		Diagnostics: v.Graphs.Diagnostics,
		Stats:       v.Stats,
		Summaries: map[graph.Kind]GraphSummary{
			graph.KindRAG: summarize(v.Graphs.RAG),
			graph.KindWFG: summarize(v.Graphs.WFG),
		},
	}
}
