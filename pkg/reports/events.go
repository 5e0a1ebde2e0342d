package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/rmax-ai/osmon/pkg/store"
)

// DefaultEventLimit caps an events report when the caller sets no limit.
const DefaultEventLimit = 1000

// EventReport exports the stored event log, oldest first.
type EventReport struct {
	store ReportStore
}

func NewEventReport(s ReportStore) *EventReport {
	return &EventReport{store: s}
}

func (r *EventReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	events, err := r.store.QueryEvents(ctx, eventFilter(params))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	headers := []string{"timestamp", "event_id", "event_type", "writer_id", "correlation_id", "causation_id", "payload"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	// QueryEvents returns newest first.
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		rec := []string{
			e.TsEvent.UTC().Format(time.RFC3339Nano),
			string(e.EventID),
			string(e.EventType),
			e.Source.WriterID,
			e.Correlation.CorrelationID,
			e.Correlation.CausationID,
			string(e.Payload),
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

func eventFilter(p ReportParams) store.EventFilter {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return store.EventFilter{
		From:       p.Start,
		To:         p.End,
		EventTypes: p.EventTypes,
		Limit:      limit,
	}
}
