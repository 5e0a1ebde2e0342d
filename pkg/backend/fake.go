package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Scenario is a canned backend state served by FakeBackend.
type Scenario struct {
	Name         string     `yaml:"name"`
	Processes    []Process  `yaml:"processes"`
	Resources    []Resource `yaml:"resources"`
	RAGEdges     []RAGEdge  `yaml:"ragEdges"`
	WaitForGraph []WFGEdge  `yaml:"waitForGraph"`
	HasDeadlock  bool       `yaml:"hasDeadlock"`
	Jobs         []Job      `yaml:"jobs"`
}

// View returns the visualize payload for the scenario.
func (s Scenario) View() DeadlockView {
	return DeadlockView{
		RAGEdges:     s.RAGEdges,
		WaitForGraph: s.WaitForGraph,
		Processes:    s.Processes,
		Resources:    s.Resources,
		HasDeadlock:  s.HasDeadlock,
	}
}

// LoadScenarios reads a YAML document with a top-level "scenarios" list.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var doc struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse scenarios %s: %w", path, err)
	}
	for i, s := range doc.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("scenario %d: name is required", i)
		}
	}
	return doc.Scenarios, nil
}

// SafeScenario is two processes and one resource with no cycle.
func SafeScenario() Scenario {
	return Scenario{
		Name:      "safe",
		Processes: []Process{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}},
		Resources: []Resource{{ID: 1, Name: "R1", Total: 1, Available: 0}},
		RAGEdges: []RAGEdge{
			{Type: RAGEdgeHold, From: Endpoint{ID: 1, Type: EndpointResource}, To: Endpoint{ID: 1, Type: EndpointProcess}, Units: 1},
			{Type: RAGEdgeRequest, From: Endpoint{ID: 2, Type: EndpointProcess}, To: Endpoint{ID: 1, Type: EndpointResource}, Units: 1},
		},
		WaitForGraph: []WFGEdge{},
		Jobs: []Job{
			{PID: 1, Name: "A", Arrival: 0, Burst: 3, Priority: 2},
			{PID: 2, Name: "B", Arrival: 1, Burst: 2, Priority: 1},
			{PID: 3, Arrival: 2, Burst: 4, Priority: 3},
		},
	}
}

// DeadlockScenario is the classic two-process, two-resource circular wait.
func DeadlockScenario() Scenario {
	return Scenario{
		Name:      "deadlock",
		Processes: []Process{{ID: 1, Name: "P1"}, {ID: 2, Name: "P2"}},
		Resources: []Resource{
			{ID: 1, Name: "R1", Total: 1, Available: 0},
			{ID: 2, Name: "R2", Total: 1, Available: 0},
		},
		RAGEdges: []RAGEdge{
			{Type: RAGEdgeHold, From: Endpoint{ID: 1, Type: EndpointResource}, To: Endpoint{ID: 1, Type: EndpointProcess}, Units: 1},
			{Type: RAGEdgeHold, From: Endpoint{ID: 2, Type: EndpointResource}, To: Endpoint{ID: 2, Type: EndpointProcess}, Units: 1},
			{Type: RAGEdgeRequest, From: Endpoint{ID: 1, Type: EndpointProcess}, To: Endpoint{ID: 2, Type: EndpointResource}, Units: 1},
			{Type: RAGEdgeRequest, From: Endpoint{ID: 2, Type: EndpointProcess}, To: Endpoint{ID: 1, Type: EndpointResource}, Units: 1},
		},
		WaitForGraph: []WFGEdge{
			{ProcessID: 1, ProcessName: "P1", WaitingFor: []WaitRef{{ProcessID: 2, ProcessName: "P2"}}},
			{ProcessID: 2, ProcessName: "P2", WaitingFor: []WaitRef{{ProcessID: 1, ProcessName: "P1"}}},
		},
		HasDeadlock: true,
		Jobs:        SafeScenario().Jobs,
	}
}

// FakeBackend serves the OS simulator API from in-memory scenarios. It backs
// cmd/osmon-sim and the tests of every package that talks to the backend.
type FakeBackend struct {
	mu        sync.Mutex
	mux       *http.ServeMux
	scenarios map[string]Scenario
	current   Scenario
	recovered string
	last      ScheduleResult
	calls     map[string]int
}

// NewFakeBackend starts in the "safe" scenario. Extra scenarios override the
// built-ins by name; a scenario named "deadlock" is used by simulate.
func NewFakeBackend(extra ...Scenario) *FakeBackend {
	f := &FakeBackend{
		mux:       http.NewServeMux(),
		scenarios: map[string]Scenario{},
		calls:     map[string]int{},
	}
	for _, s := range append([]Scenario{SafeScenario(), DeadlockScenario()}, extra...) {
		f.scenarios[s.Name] = s
	}
	f.current = f.scenarios["safe"]
	f.recovered = "safe"
	f.last = NormalizeSchedule(ScheduleResult{})

	f.mux.HandleFunc("/api/health", f.handleHealth)
	f.mux.HandleFunc("/api/os/deadlock/visualize", f.handleVisualize)
	f.mux.HandleFunc("/api/os/deadlock", f.handleStats)
	f.mux.HandleFunc("/api/os/deadlock/simulate", f.handleSimulate)
	f.mux.HandleFunc("/api/os/deadlock/recover", f.handleRecover)
	f.mux.HandleFunc("/api/os/processes", f.handleProcesses)
	f.mux.HandleFunc("/api/os/processes/schedule", f.handleSchedule)
	return f
}

func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.mu.Unlock()
	f.mux.ServeHTTP(w, r)
}

// Use switches the active scenario. It reports false for unknown names.
func (f *FakeBackend) Use(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scenarios[name]
	if !ok {
		return false
	}
	f.current = s
	if !s.HasDeadlock {
		f.recovered = name
	}
	return true
}

// Current returns the name of the active scenario.
func (f *FakeBackend) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Name
}

// Calls returns how many requests hit path.
func (f *FakeBackend) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *FakeBackend) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok"})
}

func (f *FakeBackend) handleVisualize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f.mu.Lock()
	v := f.current.View()
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, v)
}

func (f *FakeBackend) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f.mu.Lock()
	dl := f.current.HasDeadlock
	f.mu.Unlock()
	stats := DeadlockStats{HasDeadlock: dl, SafeState: !dl, Status: "safe"}
	if dl {
		stats.Status = "deadlocked"
	}
	writeJSON(w, http.StatusOK, stats)
}

func (f *FakeBackend) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	created := f.Use("deadlock")
	writeJSON(w, http.StatusOK, SimulateResult{Success: created, DeadlockCreated: created})
}

func (f *FakeBackend) handleRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f.mu.Lock()
	terminated := 0
	if f.current.HasDeadlock {
		terminated = 1
		f.current = f.scenarios[f.recovered]
	}
	still := f.current.HasDeadlock
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, RecoverResult{Success: true, ProcessesTerminated: terminated, StillDeadlocked: still})
}

func (f *FakeBackend) handleProcesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f.mu.Lock()
	res := f.last
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, res)
}

func (f *FakeBackend) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	jobs := f.current.Jobs
	if req.ProcessCount > 0 && req.ProcessCount < len(jobs) {
		jobs = jobs[:req.ProcessCount]
	}
	res := Schedule(jobs, req.Algorithm, req.Quantum)
	f.last = res
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
