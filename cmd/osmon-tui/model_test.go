package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/osmon/pkg/api"
	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/client"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/store"
)

type fakeAPI struct {
	view      engine.View
	err       error
	scheduled []backend.ScheduleRequest
}

func (f *fakeAPI) View(ctx context.Context) (engine.View, error) { return f.view, f.err }

func (f *fakeAPI) GetEvents(ctx context.Context, opts client.EventsOptions) ([]store.Event, error) {
	return []store.Event{
		{EventID: "evt-1", EventType: store.EventTypeBackendError, TsEvent: time.Now(), Payload: []byte(`{"error":"boom"}`)},
	}, nil
}

func (f *fakeAPI) Refresh(ctx context.Context) (engine.View, error) { return f.view, f.err }

func (f *fakeAPI) Schedule(ctx context.Context, req backend.ScheduleRequest) (api.TimelineResponse, error) {
	f.scheduled = append(f.scheduled, req)
	return api.TimelineResponse{Summary: engine.ScheduleSummary{Algorithm: req.Algorithm, ProcessCount: 3}}, nil
}

func (f *fakeAPI) SimulateDeadlock(ctx context.Context) (api.SimulateResponse, error) {
	return api.SimulateResponse{Result: backend.SimulateResult{Success: true, DeadlockCreated: true}}, nil
}

func (f *fakeAPI) RecoverDeadlock(ctx context.Context) (api.RecoverResponse, error) {
	return api.RecoverResponse{}, errors.New("backend down")
}

func deadlockView() engine.View {
	s := backend.DeadlockScenario()
	return engine.BuildView("0123456789", 1, engine.Snapshot{
		Deadlock:  s.View(),
		Schedule:  backend.Schedule(s.Jobs, backend.AlgorithmFCFS, 0),
		FetchedAt: time.Now(),
	})
}

func key(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModel_DataAndTabs(t *testing.T) {
	f := &fakeAPI{view: deadlockView()}
	m := initialModel(f, time.Second)

	if !strings.Contains(m.View(), "Connecting") {
		t.Error("expected connecting screen before the first fetch")
	}

	msg := m.fetchData()()
	m, _ = update(t, m, msg)
	if !m.ready || m.err != nil {
		t.Fatalf("ready=%v err=%v", m.ready, m.err)
	}
	out := m.View()
	if !strings.Contains(out, "DEADLOCK DETECTED") || !strings.Contains(out, "01234567") {
		t.Errorf("view missing banner or snapshot id:\n%s", out)
	}

	m, _ = update(t, m, key("3"))
	if m.tab != tabGantt || !strings.Contains(m.viewport.View(), "Scheduling: FCFS") {
		t.Errorf("gantt tab not rendered:\n%s", m.viewport.View())
	}
	m, _ = update(t, m, key("4"))
	if !strings.Contains(m.viewport.View(), "backend_error") {
		t.Errorf("events tab not rendered:\n%s", m.viewport.View())
	}
}

func TestModel_Offline(t *testing.T) {
	f := &fakeAPI{err: &client.APIError{Status: 503, Code: "no_snapshot_yet"}}
	m := initialModel(f, time.Second)
	m, _ = update(t, m, m.fetchData()())
	if !strings.Contains(m.View(), "waiting for its first poll") {
		t.Errorf("expected waiting status:\n%s", m.View())
	}

	f.err = errors.New("connection refused")
	m, _ = update(t, m, m.fetchData()())
	if !strings.Contains(m.View(), "Offline: connection refused") {
		t.Errorf("expected offline status:\n%s", m.View())
	}
}

func TestModel_Actions(t *testing.T) {
	f := &fakeAPI{view: deadlockView()}
	m := initialModel(f, time.Second)

	m, _ = update(t, m, key("a"))
	m, _ = update(t, m, key("+"))
	_, cmd := update(t, m, key("enter"))
	msg := cmd()
	if len(f.scheduled) != 1 || f.scheduled[0].Algorithm != backend.AlgorithmSJF || f.scheduled[0].Quantum != 3 {
		t.Fatalf("scheduled = %+v", f.scheduled)
	}
	m, _ = update(t, m, msg)
	if m.note != "SJF scheduled 3 processes" {
		t.Errorf("note = %q", m.note)
	}

	_, cmd = update(t, m, key("x"))
	m, _ = update(t, m, cmd())
	if m.err == nil || !strings.Contains(m.err.Error(), "recover: backend down") {
		t.Errorf("err = %v", m.err)
	}
}
