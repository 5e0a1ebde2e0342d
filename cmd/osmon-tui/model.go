package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/osmon/pkg/api"
	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/client"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/render"
	"github.com/rmax-ai/osmon/pkg/store"
)

const (
	maxEvents      = 20
	requestTimeout = 2 * time.Second
	defaultWidth   = 100
	chromeHeight   = 8
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)

	eventTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	errorEvent     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	actionEvent    = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	infoEvent      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type tab int

const (
	tabRAG tab = iota
	tabWFG
	tabGantt
	tabEvents
)

var tabNames = []string{"1 RAG", "2 Wait-For", "3 Gantt", "4 Events"}

var algorithms = []string{
	backend.AlgorithmFCFS,
	backend.AlgorithmSJF,
	backend.AlgorithmPriority,
	backend.AlgorithmRoundRobin,
}

// API is the daemon as seen by the dashboard.
type API interface {
	View(ctx context.Context) (engine.View, error)
	GetEvents(ctx context.Context, opts client.EventsOptions) ([]store.Event, error)
	Refresh(ctx context.Context) (engine.View, error)
	Schedule(ctx context.Context, req backend.ScheduleRequest) (api.TimelineResponse, error)
	SimulateDeadlock(ctx context.Context) (api.SimulateResponse, error)
	RecoverDeadlock(ctx context.Context) (api.RecoverResponse, error)
}

type tickMsg time.Time

type dataMsg struct {
	view   engine.View
	events []store.Event
	err    error
}

type actionMsg struct {
	note string
	err  error
}

type model struct {
	api      API
	pollRate time.Duration
	spinner  spinner.Model
	viewport viewport.Model

	tab       tab
	algorithm int
	quantum   int
	width     int

	view   engine.View
	events []store.Event
	note   string
	err    error
	ready  bool
}

func initialModel(a API, pollRate time.Duration) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      a,
		pollRate: pollRate,
		spinner:  s,
		viewport: newViewport(defaultWidth, 20),
		quantum:  2,
		width:    defaultWidth,
	}
}

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchData(),
		m.tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1", "2", "3", "4":
			m.tab = tab(msg.String()[0] - '1')
			m.updateViewportContent()
			return m, nil
		case "tab":
			m.tab = (m.tab + 1) % tab(len(tabNames))
			m.updateViewportContent()
			return m, nil
		case "a":
			m.algorithm = (m.algorithm + 1) % len(algorithms)
			return m, nil
		case "+":
			m.quantum++
			return m, nil
		case "-":
			if m.quantum > 1 {
				m.quantum--
			}
			return m, nil
		case "r":
			return m, m.action("refresh", func(ctx context.Context) (string, error) {
				v, err := m.api.Refresh(ctx)
				return fmt.Sprintf("refreshed snapshot %s", shortID(v.SnapshotID)), err
			})
		case "enter":
			req := backend.ScheduleRequest{Algorithm: algorithms[m.algorithm], Quantum: m.quantum}
			return m, m.action("schedule", func(ctx context.Context) (string, error) {
				res, err := m.api.Schedule(ctx, req)
				return fmt.Sprintf("%s scheduled %d processes", res.Summary.Algorithm, res.Summary.ProcessCount), err
			})
		case "s":
			return m, m.action("simulate", func(ctx context.Context) (string, error) {
				res, err := m.api.SimulateDeadlock(ctx)
				return fmt.Sprintf("deadlock created: %v", res.Result.DeadlockCreated), err
			})
		case "x":
			return m, m.action("recover", func(ctx context.Context) (string, error) {
				res, err := m.api.RecoverDeadlock(ctx)
				return fmt.Sprintf("terminated %d processes, still deadlocked: %v",
					res.Result.ProcessesTerminated, res.Result.StillDeadlocked), err
			})
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, m.fetchData(), m.tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.view = msg.view
			m.events = msg.events
		}
		m.ready = true
		m.updateViewportContent()

	case actionMsg:
		m.note = msg.note
		m.err = msg.err
		cmds = append(cmds, m.fetchData())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - chromeHeight
		if height < 5 {
			height = 5
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = height
		m.updateViewportContent()
	}

	return m, tea.Batch(cmds...)
}

func (m *model) updateViewportContent() {
	var content string
	switch {
	case m.view.IsZero():
		content = subtleStyle.Render("Waiting for the first snapshot...")
	case m.tab == tabRAG:
		content = render.RAG(m.view.Graphs.RAG)
		if d := render.Diagnostics(m.view.Graphs.Diagnostics); d != "" {
			content += "\n\n" + d
		}
	case m.tab == tabWFG:
		content = render.WFG(m.view.Graphs.WFG) + "\n\n" + render.Stats(m.view.Stats)
	case m.tab == tabGantt:
		content = render.Timeline(m.view.Timeline, m.width-4) + "\n\n" + render.Schedule(m.view.Summary, m.view.Processes)
	case m.tab == tabEvents:
		content = m.renderEvents()
	}
	m.viewport.SetContent(content)
}

func (m model) renderEvents() string {
	if len(m.events) == 0 {
		return subtleStyle.Render("No events recorded.")
	}
	var sb strings.Builder
	for _, e := range m.events {
		style := infoEvent
		switch e.EventType {
		case store.EventTypeBackendError:
			style = errorEvent
		case store.EventTypeActionInvoked, store.EventTypeDeadlockChanged:
			style = actionEvent
		}
		fmt.Fprintf(&sb, "%s %s %s\n",
			eventTimeStyle.Render(e.TsEvent.Local().Format("15:04:05")),
			style.Render(string(e.EventType)),
			subtleStyle.Render(summarizePayload(e)),
		)
	}
	return sb.String()
}

func summarizePayload(e store.Event) string {
	if e.EventType == store.EventTypeSnapshotObserved {
		return shortID(string(e.EventID))
	}
	s := string(e.Payload)
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to osmon-d...", m.spinner.View())
	}

	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if tab(i) == m.tab {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = inactiveTabStyle.Render(name)
		}
	}
	title := fmt.Sprintf("%s osmon", m.spinner.View())
	header := headerStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, append([]string{title, "  "}, tabs...)...))
	banner := subtleStyle.Render("No snapshot yet")
	if !m.view.IsZero() {
		banner = render.Banner(m.view.Graphs.RAG)
	}

	var status string
	switch {
	case m.err != nil && errors.Is(m.err, client.ErrNoSnapshot):
		status = noteStyle.Render("Daemon is waiting for its first poll")
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	default:
		status = okStyle.Render(fmt.Sprintf("Online • snapshot %s • %s", shortID(m.view.SnapshotID), m.view.FetchedAt.Local().Format("15:04:05")))
	}
	if m.note != "" {
		status += "  " + noteStyle.Render(m.note)
	}
	keys := fmt.Sprintf("algorithm %s (a) • quantum %d (+/-) • enter schedule • s simulate • x recover • r refresh • q quit",
		algorithms[m.algorithm], m.quantum)
	footer := subtleStyle.Render(fmt.Sprintf("%s\n%s", status, keys))

	return lipgloss.JoinVertical(lipgloss.Left, header, banner, m.viewport.View(), footer)
}

// Commands

func (m model) fetchData() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		view, err := m.api.View(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		events, err := m.api.GetEvents(ctx, client.EventsOptions{Limit: maxEvents})
		if err != nil {
			return dataMsg{err: err}
		}
		return dataMsg{view: view, events: events}
	}
}

func (m model) action(name string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		note, err := fn(ctx)
		if err != nil {
			return actionMsg{err: fmt.Errorf("%s: %w", name, err)}
		}
		return actionMsg{note: note}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
