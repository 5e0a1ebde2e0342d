package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/client"
	"github.com/rmax-ai/osmon/pkg/render"
)

// Server adapts osmon-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("osmon", version),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"osmon://graphs",
		"Concurrency Graphs",
		mcp.WithResourceDescription("Resource allocation and wait-for graphs of the latest snapshot, with the deadlock verdict"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraphs)

	s.mcpServer.AddResource(mcp.NewResource(
		"osmon://timeline",
		"Scheduling Timeline",
		mcp.WithResourceDescription("Gantt rows and per-process statistics of the last scheduling run"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadTimeline)

	s.mcpServer.AddResource(mcp.NewResource(
		"osmon://events",
		"Osmon Event Log",
		mcp.WithResourceDescription("Recent snapshots, backend errors, actions and deadlock transitions"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadEvents)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"refresh",
		mcp.WithDescription("Poll the OS simulator now and summarise the resulting state."),
	), s.handleRefresh)

	s.mcpServer.AddTool(mcp.NewTool(
		"run_schedule",
		mcp.WithDescription("Run a CPU scheduling algorithm on the simulator and return the Gantt chart."),
		mcp.WithString("algorithm", mcp.Required(), mcp.Description("FCFS, SJF, Priority or RoundRobin")),
		mcp.WithNumber("quantum", mcp.Description("Round robin time quantum (default 2)")),
		mcp.WithNumber("process_count", mcp.Description("Number of processes to schedule (default all)")),
	), s.handleRunSchedule)

	s.mcpServer.AddTool(mcp.NewTool(
		"simulate_deadlock",
		mcp.WithDescription("Ask the simulator to construct a circular wait."),
	), s.handleSimulate)

	s.mcpServer.AddTool(mcp.NewTool(
		"recover_deadlock",
		mcp.WithDescription("Ask the simulator to break the current deadlock by terminating processes."),
	), s.handleRecover)

	s.mcpServer.AddTool(mcp.NewTool(
		"export_graph",
		mcp.WithDescription("Export a graph of the latest snapshot as Graphviz DOT or Mermaid."),
		mcp.WithString("graph", mcp.Description("rag or wfg (default rag)")),
		mcp.WithString("format", mcp.Description("dot or mermaid (default mermaid)")),
	), s.handleExport)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"osmon-aware",
		mcp.WithPromptDescription("Provides context about osmon concepts (RAG, WFG, scheduling)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadGraphs(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	g, err := s.apiClient.Graphs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graphs: %w", err)
	}
	return jsonContents(request.Params.URI, g)
}

func (s *Server) handleReadTimeline(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tl, err := s.apiClient.Timeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeline: %w", err)
	}
	return jsonContents(request.Params.URI, tl)
}

func (s *Server) handleReadEvents(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	events, err := s.apiClient.GetEvents(ctx, client.EventsOptions{Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return jsonContents(request.Params.URI, events)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.apiClient.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	rag := v.Graphs.RAG
	msg := fmt.Sprintf("Snapshot: %s\nStatus: %s\nProcesses: %d, resources: %d, edges: %d",
		v.SnapshotID, rag.Status(), len(v.Graphs.WFG.Nodes), len(rag.Nodes)-len(v.Graphs.WFG.Nodes), len(rag.Edges))
	if b := rag.Banner(); b != "" {
		msg += "\n" + b
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) handleRunSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := backend.ScheduleRequest{
		Algorithm:    mcp.ParseString(request, "algorithm", ""),
		Quantum:      mcp.ParseInt(request, "quantum", 2),
		ProcessCount: mcp.ParseInt(request, "process_count", 0),
	}
	if req.Algorithm == "" {
		return mcp.NewToolResultError("algorithm is required"), nil
	}

	tl, err := s.apiClient.Schedule(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(render.Schedule(tl.Summary, tl.Processes))
	b.WriteString("\n\nGantt:\n")
	for _, row := range tl.Timeline.Rows {
		fmt.Fprintf(&b, "%s %s\n", row.Label, row.Caption)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) handleSimulate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.apiClient.SimulateDeadlock(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	msg := fmt.Sprintf("Deadlock created: %v\n%s", res.Result.DeadlockCreated, res.View.Graphs.RAG.Banner())
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) handleRecover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.apiClient.RecoverDeadlock(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	msg := fmt.Sprintf("Processes terminated: %d\nStill deadlocked: %v",
		res.Result.ProcessesTerminated, res.Result.StillDeadlocked)
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) handleExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := mcp.ParseString(request, "graph", "rag")
	format := mcp.ParseString(request, "format", "mermaid")
	out, err := s.apiClient.Export(ctx, kind, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "osmon-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are observing an operating system simulator through osmon.

Concepts:
- RAG: the resource allocation graph. Hold edges go resource -> process, request edges go process -> resource.
- WFG: the wait-for graph. An edge P1 -> P2 means P1 waits for a resource P2 holds.
- Deadlock: a circular wait. The simulator reports the verdict; osmon does not compute it.
- Scheduling: FCFS, SJF, Priority and RoundRobin runs produce a Gantt chart and waiting/turnaround times.

Read osmon://graphs before reasoning about the system state.
Only call simulate_deadlock or recover_deadlock when the user asks for it; both change the simulator.
`

	return mcp.NewGetPromptResult(
		"osmon-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
