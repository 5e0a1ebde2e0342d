package engine

import (
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/graph"
	"github.com/rmax-ai/osmon/pkg/timeline"
)

// Snapshot is everything fetched from the backend in one poll. It is the
// payload of snapshot_observed events, so a View can be rebuilt from the
// store alone.
type Snapshot struct {
	Deadlock  backend.DeadlockView   `json:"deadlock"`
	Stats     backend.DeadlockStats  `json:"stats"`
	Schedule  backend.ScheduleResult `json:"schedule"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// ScheduleSummary is the header of the scheduling panel.
type ScheduleSummary struct {
	Algorithm             string  `json:"algorithm"`
	ProcessCount          int     `json:"process_count"`
	AverageWaitingTime    float64 `json:"average_waiting_time"`
	AverageTurnaroundTime float64 `json:"average_turnaround_time"`
}

// View is the fully derived, render-ready state of one snapshot.
type View struct {
	SnapshotID string                  `json:"snapshot_id"`
	Seq        uint64                  `json:"seq"`
	FetchedAt  time.Time               `json:"fetched_at"`
	Graphs     graph.Graphs            `json:"graphs"`
	Timeline   timeline.Chart          `json:"timeline"`
	Summary    ScheduleSummary         `json:"summary"`
	Processes  []backend.ProcessDetail `json:"processes"`
	Stats      backend.DeadlockStats   `json:"stats"`
	Snapshot   Snapshot                `json:"snapshot"`
}

// IsZero reports whether no snapshot has been applied yet.
func (v View) IsZero() bool {
	return v.Seq == 0 && v.SnapshotID == ""
}

// BuildView derives a View from a snapshot. It is pure; the same inputs
// always produce the same View.
func BuildView(id string, seq uint64, s Snapshot) View {
	s.Deadlock = backend.Normalize(s.Deadlock)
	s.Schedule = backend.NormalizeSchedule(s.Schedule)

	return View{
		SnapshotID: id,
		Seq:        seq,
		FetchedAt:  s.FetchedAt,
		Graphs:     graph.Build(s.Deadlock),
		Timeline:   timeline.Reconstruct(s.Schedule.GanttChart),
		Summary: ScheduleSummary{
			Algorithm:             s.Schedule.Algorithm,
			ProcessCount:          s.Schedule.ProcessCount,
			AverageWaitingTime:    s.Schedule.AverageWaitingTime,
			AverageTurnaroundTime: s.Schedule.AverageTurnaroundTime,
		},
		Processes: s.Schedule.Processes,
		Stats:     s.Stats,
		Snapshot:  s,
	}
}
