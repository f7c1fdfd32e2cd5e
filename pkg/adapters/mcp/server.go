// Package mcp exposes a running machine as a Model Context Protocol server,
// so agents can inspect the transition graph and fire triggers as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/schema"
)

// Engine is the slice of the machine API the MCP server drives. A started
// *espalier.Machine[string, string] satisfies it.
type Engine interface {
	State(ctx context.Context) (string, error)
	PermittedTriggers(ctx context.Context, args ...any) ([]string, error)
	TriggerParameters(trigger string) (*espalier.ParameterSpec, bool)
	Fire(trigger string, args ...any) (uint64, error)
	FireSync(ctx context.Context, trigger string, args ...any) (espalier.Outcome[string, string], error)
	QueueDepth() int
}

// FireResult is the structured output of the fire_trigger tool.
type FireResult struct {
	Seq          uint64 `json:"seq" jsonschema_description:"Sequence number assigned to the invocation"`
	Handled      bool   `json:"handled" jsonschema_description:"Whether any behavior handled the trigger"`
	Transitioned bool   `json:"transitioned" jsonschema_description:"Whether the machine changed state"`
	State        string `json:"state" jsonschema_description:"State after the invocation was processed"`
	Source       string `json:"source,omitempty" jsonschema_description:"State the transition left"`
	Destination  string `json:"destination,omitempty" jsonschema_description:"State the transition entered"`
	Rejection    string `json:"rejection,omitempty" jsonschema_description:"Why the trigger was rejected, empty when handled"`
}

// QueueResult is the structured output of the queue_trigger tool.
type QueueResult struct {
	Seq        uint64 `json:"seq" jsonschema_description:"Sequence number assigned to the invocation"`
	QueueDepth int    `json:"queue_depth" jsonschema_description:"Invocations waiting behind this one"`
}

// StateResult is the structured output of the get_state tool.
type StateResult struct {
	State      string   `json:"state" jsonschema_description:"Current state"`
	Triggers   []string `json:"triggers" jsonschema_description:"Triggers permitted from the current state"`
	QueueDepth int      `json:"queue_depth" jsonschema_description:"Invocations waiting to be dispatched"`
}

// TriggerDescriptor describes one permitted trigger and its argument shape.
type TriggerDescriptor struct {
	Name   string   `json:"name" jsonschema_description:"Trigger name"`
	Params []string `json:"params,omitempty" jsonschema_description:"Declared argument types, in order"`
}

// TriggersResult is the structured output of the list_triggers tool.
type TriggersResult struct {
	State    string              `json:"state" jsonschema_description:"Current state"`
	Triggers []TriggerDescriptor `json:"triggers" jsonschema_description:"Triggers permitted from the current state"`
}

// Server exposes a machine and its definition over MCP.
type Server struct {
	engine    Engine
	def       *schema.Definition
	mcpServer *server.MCPServer
}

// NewServer wires the machine into an MCP server. def backs the graph tool
// and the definition resource; pass nil for machines configured in code.
func NewServer(engine Engine, def *schema.Definition) *Server {
	s := &Server{
		engine:    engine,
		def:       def,
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts it down
// gracefully when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: fire_trigger (rendezvous: blocks for this invocation's outcome)
	fireTool := mcp.NewTool("fire_trigger",
		mcp.WithDescription("Fire a trigger and wait for its outcome. Returns the resulting state, or the rejection reason when the trigger is not permitted."),
		mcp.WithString("trigger", mcp.Required(), mcp.Description("Trigger name")),
		mcp.WithString("args", mcp.Description("JSON array of trigger arguments, matching the trigger's declared parameters (optional)")),
		mcp.WithOutputSchema[FireResult](),
	)
	s.mcpServer.AddTool(fireTool, mcp.NewStructuredToolHandler(s.handleFireTrigger))

	// TOOL: queue_trigger (fire-and-forget)
	queueTool := mcp.NewTool("queue_trigger",
		mcp.WithDescription("Enqueue a trigger without waiting for it to be processed. Returns the assigned sequence number."),
		mcp.WithString("trigger", mcp.Required(), mcp.Description("Trigger name")),
		mcp.WithString("args", mcp.Description("JSON array of trigger arguments (optional)")),
		mcp.WithOutputSchema[QueueResult](),
	)
	s.mcpServer.AddTool(queueTool, mcp.NewStructuredToolHandler(s.handleQueueTrigger))

	// TOOL: get_state
	stateTool := mcp.NewTool("get_state",
		mcp.WithDescription("Get the current state and the triggers permitted from it."),
		mcp.WithOutputSchema[StateResult](),
	)
	s.mcpServer.AddTool(stateTool, mcp.NewStructuredToolHandler(s.handleGetState))

	// TOOL: list_triggers
	triggersTool := mcp.NewTool("list_triggers",
		mcp.WithDescription("List the triggers permitted from the current state, with the argument types each must be fired with."),
		mcp.WithOutputSchema[TriggersResult](),
	)
	s.mcpServer.AddTool(triggersTool, mcp.NewStructuredToolHandler(s.handleListTriggers))

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the state hierarchy and transitions as a Mermaid diagram, with the current state highlighted."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.def == nil {
			return mcp.NewToolResultError("no definition loaded"), nil
		}
		var overlay *graph.Overlay
		if state, err := s.engine.State(ctx); err == nil {
			overlay = &graph.Overlay{CurrentState: state}
		}
		return mcp.NewToolResultText(graph.GenerateMermaid(s.def, overlay)), nil
	})
}

func (s *Server) handleFireTrigger(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (FireResult, error) {
	trigger, fireArgs, err := s.decodeTriggerArgs(args)
	if err != nil {
		return FireResult{}, err
	}

	out, err := s.engine.FireSync(ctx, trigger, fireArgs...)

	var invalid *espalier.InvalidTriggerError
	if errors.As(err, &invalid) {
		// A rejected trigger is a meaningful answer for the caller, not a
		// tool failure.
		state, _ := s.engine.State(ctx)
		return FireResult{Seq: out.Seq, State: state, Rejection: invalid.Error()}, nil
	}
	if err != nil {
		return FireResult{}, fmt.Errorf("fire failed: %w", err)
	}

	state, serr := s.engine.State(ctx)
	if serr != nil {
		slog.Error("MCP fire_trigger: state read failed", "error", serr)
	}

	res := FireResult{
		Seq:          out.Seq,
		Handled:      out.Handled,
		Transitioned: out.Transitioned,
		State:        state,
	}
	if out.Transitioned {
		res.Source = out.Transition.Source
		res.Destination = out.Transition.Destination
	}
	return res, nil
}

func (s *Server) handleQueueTrigger(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (QueueResult, error) {
	trigger, fireArgs, err := s.decodeTriggerArgs(args)
	if err != nil {
		return QueueResult{}, err
	}

	seq, err := s.engine.Fire(trigger, fireArgs...)
	if err != nil {
		return QueueResult{}, fmt.Errorf("fire failed: %w", err)
	}
	return QueueResult{Seq: seq, QueueDepth: s.engine.QueueDepth()}, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StateResult, error) {
	state, err := s.engine.State(ctx)
	if err != nil {
		return StateResult{}, fmt.Errorf("state read failed: %w", err)
	}

	triggers, err := s.engine.PermittedTriggers(ctx)
	if err != nil {
		return StateResult{}, fmt.Errorf("trigger introspection failed: %w", err)
	}
	if triggers == nil {
		triggers = []string{}
	}

	return StateResult{
		State:      state,
		Triggers:   triggers,
		QueueDepth: s.engine.QueueDepth(),
	}, nil
}

func (s *Server) handleListTriggers(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TriggersResult, error) {
	state, err := s.engine.State(ctx)
	if err != nil {
		return TriggersResult{}, fmt.Errorf("state read failed: %w", err)
	}

	names, err := s.engine.PermittedTriggers(ctx)
	if err != nil {
		return TriggersResult{}, fmt.Errorf("trigger introspection failed: %w", err)
	}

	triggers := make([]TriggerDescriptor, 0, len(names))
	for _, name := range names {
		desc := TriggerDescriptor{Name: name}
		if spec, ok := s.engine.TriggerParameters(name); ok {
			for _, t := range spec.Types() {
				desc.Params = append(desc.Params, t.String())
			}
		}
		triggers = append(triggers, desc)
	}

	return TriggersResult{State: state, Triggers: triggers}, nil
}

// triggerRequest is the raw tool-call argument shape shared by fire_trigger
// and queue_trigger.
type triggerRequest struct {
	Trigger string `mapstructure:"trigger"`
	Args    string `mapstructure:"args"`
}

// decodeTriggerArgs extracts the trigger name and decodes the optional args
// JSON array, coercing values to the trigger's declared parameter types.
func (s *Server) decodeTriggerArgs(args map[string]interface{}) (string, []any, error) {
	var req triggerRequest
	if err := mapstructure.Decode(args, &req); err != nil {
		return "", nil, fmt.Errorf("failed to decode tool arguments: %w", err)
	}
	if req.Trigger == "" {
		return "", nil, fmt.Errorf("trigger is required")
	}

	var fireArgs []any
	if req.Args != "" {
		if err := json.Unmarshal([]byte(req.Args), &fireArgs); err != nil {
			return "", nil, fmt.Errorf("args must be a JSON array: %w", err)
		}
	}

	if spec, ok := s.engine.TriggerParameters(req.Trigger); ok {
		coerced, err := schema.CoerceArgs(spec.Types(), fireArgs)
		if err != nil {
			return "", nil, fmt.Errorf("trigger %q: %w", req.Trigger, err)
		}
		fireArgs = coerced
	}
	return req.Trigger, fireArgs, nil
}

func (s *Server) registerResources() {
	// EXPOSE: espalier://definition
	s.mcpServer.AddResource(mcp.NewResource("espalier://definition", "Machine Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if s.def == nil {
			return nil, fmt.Errorf("no definition loaded")
		}
		jsonBytes, err := json.Marshal(s.def)
		if err != nil {
			return nil, fmt.Errorf("failed to encode definition: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "espalier://definition",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
