package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// TimelineReport writes one line per Gantt row of the latest View.
type TimelineReport struct {
	views ViewSource
}

func NewTimelineReport(v ViewSource) *TimelineReport {
	return &TimelineReport{views: v}
}

func (r *TimelineReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	view, ok := r.views.Latest()
	if !ok {
		return nil, ErrNoView
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	headers := []string{"snapshot_id", "process_id", "label", "start", "end", "duration", "color", "max_time"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	maxTime := strconv.Itoa(view.Timeline.MaxTime)
	for _, row := range view.Timeline.Rows {
		rec := []string{
			view.SnapshotID,
			strconv.Itoa(row.ProcessID),
			row.Label,
			strconv.Itoa(row.Start),
			strconv.Itoa(row.End),
			strconv.Itoa(row.Duration),
			row.Color,
			maxTime,
		}
		if err := writer.Write(rec); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}

// ProcessReport writes the per-process table of the last scheduling run,
// followed by a summary line with the averages.
type ProcessReport struct {
	views ViewSource
}

func NewProcessReport(v ViewSource) *ProcessReport {
	return &ProcessReport{views: v}
}

func (r *ProcessReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	view, ok := r.views.Latest()
	if !ok {
		return nil, ErrNoView
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	headers := []string{"pid", "name", "arrival", "burst", "priority", "start", "completion", "waiting", "turnaround"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for _, p := range view.Processes {
		rec := []string{
			strconv.Itoa(p.PID),
			p.ProcessName,
			strconv.Itoa(p.ArrivalTime),
			strconv.Itoa(p.BurstTime),
			strconv.Itoa(p.Priority),
			strconv.Itoa(p.StartTime),
			strconv.Itoa(p.CompletionTime),
			strconv.Itoa(p.WaitingTime),
			strconv.Itoa(p.TurnaroundTime),
		}
		if err := writer.Write(rec); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	if len(view.Processes) > 0 {
		s := view.Summary
		summary := []string{
			"avg", s.Algorithm, "", "", "", "", "",
			strconv.FormatFloat(s.AverageWaitingTime, 'f', 2, 64),
			strconv.FormatFloat(s.AverageTurnaroundTime, 'f', 2, 64),
		}
		if err := writer.Write(summary); err != nil {
			return nil, fmt.Errorf("failed to write summary: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
