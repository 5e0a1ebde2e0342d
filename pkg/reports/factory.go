package reports

import (
	"errors"
	"fmt"
)

// ErrNoView is returned by view-backed reports before the first poll.
var ErrNoView = errors.New("no snapshot observed yet")

// NewReportGenerator creates a report generator based on the report type.
// The events report needs a store; the others need a view source.
func NewReportGenerator(reportType ReportType, views ViewSource, s ReportStore) (Generator, error) {
	switch reportType {
	case ReportTypeTimeline:
		return NewTimelineReport(views), nil
	case ReportTypeProcesses:
		return NewProcessReport(views), nil
	case ReportTypeEvents:
		if s == nil {
			return nil, fmt.Errorf("report %s needs a store", reportType)
		}
		return NewEventReport(s), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
