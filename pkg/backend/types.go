package backend

// EndpointType is the kind of vertex a RAG edge endpoint refers to.
type EndpointType string

const (
	EndpointProcess  EndpointType = "process"
	EndpointResource EndpointType = "resource"
)

// RAGEdgeKind tags a resource allocation edge.
type RAGEdgeKind string

const (
	RAGEdgeHold    RAGEdgeKind = "hold"    // resource -> process
	RAGEdgeRequest RAGEdgeKind = "request" // process -> resource
)

// Endpoint is one end of a RAG edge as reported by the simulator.
type Endpoint struct {
	ID   int          `json:"id" yaml:"id"`
	Type EndpointType `json:"type" yaml:"type"`
	Name string       `json:"name" yaml:"name"`
}

// RAGEdge is a hold or request relation between a process and a resource.
type RAGEdge struct {
	Type  RAGEdgeKind `json:"type" yaml:"type"`
	From  Endpoint    `json:"from" yaml:"from"`
	To    Endpoint    `json:"to" yaml:"to"`
	Units int         `json:"units" yaml:"units"`
}

// WaitRef names a process another process is waiting on.
type WaitRef struct {
	ProcessID   int    `json:"processId" yaml:"processId"`
	ProcessName string `json:"processName" yaml:"processName"`
}

// WFGEdge aggregates every process a single process waits for.
type WFGEdge struct {
	ProcessID   int       `json:"processId" yaml:"processId"`
	ProcessName string    `json:"processName" yaml:"processName"`
	WaitingFor  []WaitRef `json:"waitingFor" yaml:"waitingFor"`
}

// ResourceAmount is an allocation or outstanding need of one process.
type ResourceAmount struct {
	ID     int    `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Amount int    `json:"amount" yaml:"amount"`
}

// Process is a simulated process known to the deadlock detector.
type Process struct {
	ID        int              `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Allocated []ResourceAmount `json:"allocated,omitempty" yaml:"allocated,omitempty"`
	Needed    []ResourceAmount `json:"needed,omitempty" yaml:"needed,omitempty"`
}

// Resource is a pool of identical units.
type Resource struct {
	ID        int    `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Total     int    `json:"total" yaml:"total"`
	Available int    `json:"available" yaml:"available"`
}

// DeadlockView is the payload of GET /os/deadlock/visualize.
type DeadlockView struct {
	RAGEdges     []RAGEdge  `json:"ragEdges" yaml:"ragEdges"`
	WaitForGraph []WFGEdge  `json:"waitForGraph" yaml:"waitForGraph"`
	Processes    []Process  `json:"processes" yaml:"processes"`
	Resources    []Resource `json:"resources" yaml:"resources"`
	HasDeadlock  bool       `json:"hasDeadlock" yaml:"hasDeadlock"`
}

// DeadlockStats is the payload of GET /os/deadlock.
type DeadlockStats struct {
	HasDeadlock bool   `json:"hasDeadlock" yaml:"hasDeadlock"`
	SafeState   bool   `json:"safeState" yaml:"safeState"`
	Status      string `json:"status" yaml:"status"`
}

// ProcessDetail is one row of a completed scheduling run.
type ProcessDetail struct {
	PID            int    `json:"pid" yaml:"pid"`
	ProcessName    string `json:"processName,omitempty" yaml:"processName,omitempty"`
	ArrivalTime    int    `json:"arrivalTime" yaml:"arrivalTime"`
	BurstTime      int    `json:"burstTime" yaml:"burstTime"`
	Priority       int    `json:"priority" yaml:"priority"`
	StartTime      int    `json:"startTime" yaml:"startTime"`
	CompletionTime int    `json:"completionTime" yaml:"completionTime"`
	WaitingTime    int    `json:"waitingTime" yaml:"waitingTime"`
	TurnaroundTime int    `json:"turnaroundTime" yaml:"turnaroundTime"`
}

// GanttEntry is one execution interval of a scheduling run.
type GanttEntry struct {
	ProcessID   int    `json:"processId" yaml:"processId"`
	ProcessName string `json:"processName" yaml:"processName"`
	StartTime   int    `json:"startTime" yaml:"startTime"`
	EndTime     int    `json:"endTime" yaml:"endTime"`
}

// ScheduleResult is the payload of GET /os/processes and POST /os/processes/schedule.
type ScheduleResult struct {
	Processes             []ProcessDetail `json:"processes" yaml:"processes"`
	GanttChart            []GanttEntry    `json:"ganttChart" yaml:"ganttChart"`
	AverageWaitingTime    float64         `json:"averageWaitingTime" yaml:"averageWaitingTime"`
	AverageTurnaroundTime float64         `json:"averageTurnaroundTime" yaml:"averageTurnaroundTime"`
	Algorithm             string          `json:"algorithm" yaml:"algorithm"`
	ProcessCount          int             `json:"processCount" yaml:"processCount"`
}

// ScheduleRequest is the body of POST /os/processes/schedule.
type ScheduleRequest struct {
	Algorithm    string `json:"algorithm" yaml:"algorithm"`
	Quantum      int    `json:"quantum" yaml:"quantum"`
	ProcessCount int    `json:"processCount" yaml:"processCount"`
}

// SimulateResult is the payload of POST /os/deadlock/simulate.
type SimulateResult struct {
	Success         bool `json:"success" yaml:"success"`
	DeadlockCreated bool `json:"deadlockCreated" yaml:"deadlockCreated"`
}

// RecoverResult is the payload of POST /os/deadlock/recover.
type RecoverResult struct {
	Success             bool `json:"success" yaml:"success"`
	ProcessesTerminated int  `json:"processesTerminated" yaml:"processesTerminated"`
	StillDeadlocked     bool `json:"stillDeadlocked" yaml:"stillDeadlocked"`
}

// Health is the payload of GET /health.
type Health struct {
	Status string `json:"status" yaml:"status"`
}
