package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/store"
)

type ReportType string

const (
	ReportTypeTimeline  ReportType = "timeline"
	ReportTypeProcesses ReportType = "processes"
	ReportTypeEvents    ReportType = "events"
)

type ReportParams struct {
	Start      time.Time
	End        time.Time
	EventTypes []store.EventType
	Limit      int
}

// ViewSource supplies the latest derived View.
type ViewSource interface {
	Latest() (engine.View, bool)
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
