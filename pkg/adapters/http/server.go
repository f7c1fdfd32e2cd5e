// Package http exposes a running machine over a small JSON API. The surface
// is documented in api/openapi.yaml and served with chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/api"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/schema"
)

// Engine is the slice of the machine API the adapter serves. A started
// *espalier.Machine[string, string] satisfies it.
type Engine interface {
	State(ctx context.Context) (string, error)
	PermittedTriggers(ctx context.Context, args ...any) ([]string, error)
	TriggerParameters(trigger string) (*espalier.ParameterSpec, bool)
	Fire(trigger string, args ...any) (uint64, error)
	FireSync(ctx context.Context, trigger string, args ...any) (espalier.Outcome[string, string], error)
	QueueDepth() int
}

// Server holds the handlers behind NewHandler.
type Server struct {
	Engine Engine

	// Definition backs GET /graph. Optional: servers wrapping a machine
	// configured in code run without one.
	Definition *schema.Definition
}

// NewHandler builds the HTTP handler for a running machine. Pass the
// definition the machine was built from to enable GET /graph, or nil.
func NewHandler(engine Engine, def *schema.Definition) http.Handler {
	server := &Server{Engine: engine, Definition: def}
	r := chi.NewRouter()

	// Swagger UI
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(api.Spec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})

	r.Post("/fire", server.FireTrigger)
	r.Get("/state", server.GetState)
	r.Get("/triggers", server.GetTriggers)
	r.Get("/graph", server.GetGraph)
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)

	return enableCORS(r)
}

// GetSwagger parses the embedded OpenAPI document.
func GetSwagger() (*openapi3.T, error) {
	return openapi3.NewLoader().LoadFromData(api.Spec)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Espalier API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// FireRequest is the POST /fire body.
type FireRequest struct {
	Trigger string `json:"trigger"`
	Args    []any  `json:"args,omitempty"`
	Sync    bool   `json:"sync,omitempty"`
}

// FireAccepted acknowledges a queued invocation (async mode).
type FireAccepted struct {
	Seq uint64 `json:"seq"`
}

// FireOutcome reports a processed invocation (sync mode).
type FireOutcome struct {
	Seq          uint64 `json:"seq"`
	Handled      bool   `json:"handled"`
	Transitioned bool   `json:"transitioned"`
	Source       string `json:"source,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Trigger      string `json:"trigger,omitempty"`
	Value        any    `json:"value,omitempty"`
}

// StateResponse is the GET /state body.
type StateResponse struct {
	State string `json:"state"`
}

// TriggersResponse is the GET /triggers body.
type TriggersResponse struct {
	State    string   `json:"state"`
	Triggers []string `json:"triggers"`
}

// ErrorResponse is the error body shared by all routes.
type ErrorResponse struct {
	Error       string   `json:"error"`
	State       string   `json:"state,omitempty"`
	Trigger     string   `json:"trigger,omitempty"`
	UnmetGuards []string `json:"unmet_guards,omitempty"`
}

// FireTrigger handles the POST /fire request.
func (s *Server) FireTrigger(w http.ResponseWriter, r *http.Request) {
	var body FireRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		slog.Warn("FireTrigger: invalid request body", "error", err)
		return
	}
	if body.Trigger == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "trigger is required"})
		return
	}

	args, err := s.coerceArgs(body.Trigger, body.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Trigger: body.Trigger})
		slog.Warn("FireTrigger: arguments rejected", "trigger", body.Trigger, "error", err)
		return
	}

	if !body.Sync {
		seq, err := s.Engine.Fire(body.Trigger, args...)
		if err != nil {
			s.writeFireError(w, body.Trigger, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(FireAccepted{Seq: seq}); err != nil {
			slog.Error("FireTrigger response encode failed", "error", err)
		}
		return
	}

	out, err := s.Engine.FireSync(r.Context(), body.Trigger, args...)
	if err != nil {
		s.writeFireError(w, body.Trigger, err)
		return
	}

	resp := FireOutcome{
		Seq:          out.Seq,
		Handled:      out.Handled,
		Transitioned: out.Transitioned,
		Value:        out.Value,
	}
	if out.Transitioned {
		resp.Source = out.Transition.Source
		resp.Destination = out.Transition.Destination
		resp.Trigger = out.Transition.Trigger
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("FireTrigger response encode failed", "error", err)
	}
}

func (s *Server) writeFireError(w http.ResponseWriter, trigger string, err error) {
	var invalid *espalier.InvalidTriggerError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, ErrorResponse{
			Error:       invalid.Error(),
			State:       fmt.Sprint(invalid.State),
			Trigger:     trigger,
			UnmetGuards: invalid.UnmetGuards,
		})
	case errors.Is(err, espalier.ErrNotRunning) || errors.Is(err, espalier.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		slog.Warn("FireTrigger: dispatcher unavailable", "error", err)
	default:
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		slog.Error("FireTrigger failed", "trigger", trigger, "error", err)
	}
}

// GetState handles the GET /state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.State(r.Context())
	if err != nil {
		if errors.Is(err, ports.ErrStateNotFound) {
			writeError(w, http.StatusNotFound, ErrorResponse{Error: "no state recorded"})
			return
		}
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		slog.Error("GetState failed", "error", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StateResponse{State: state}); err != nil {
		slog.Error("GetState response encode failed", "error", err)
	}
}

// GetTriggers handles the GET /triggers request.
func (s *Server) GetTriggers(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.State(r.Context())
	if err != nil {
		if errors.Is(err, ports.ErrStateNotFound) {
			writeError(w, http.StatusNotFound, ErrorResponse{Error: "no state recorded"})
			return
		}
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		slog.Error("GetTriggers failed", "error", err)
		return
	}

	triggers, err := s.Engine.PermittedTriggers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		slog.Error("GetTriggers failed", "error", err)
		return
	}
	if triggers == nil {
		triggers = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(TriggersResponse{State: state, Triggers: triggers}); err != nil {
		slog.Error("GetTriggers response encode failed", "error", err)
	}
}

// GetGraph handles the GET /graph request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	if s.Definition == nil {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "no definition loaded"})
		return
	}

	var overlay *graph.Overlay
	if state, err := s.Engine.State(r.Context()); err == nil {
		overlay = &graph.Overlay{CurrentState: state}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(s.Definition, overlay))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":      "ok",
		"queue_depth": s.Engine.QueueDepth(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}

	resp := map[string]string{
		"app":         "espalier-http",
		"version":     strings.TrimSpace(espalier.Version),
		"api_version": apiVersion,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// coerceArgs aligns JSON-decoded arguments with the trigger's declared
// parameter shape. Triggers without a declared spec pass their arguments
// through untouched.
func (s *Server) coerceArgs(trigger string, raw []any) ([]any, error) {
	spec, ok := s.Engine.TriggerParameters(trigger)
	if !ok {
		return raw, nil
	}
	out, err := schema.CoerceArgs(spec.Types(), raw)
	if err != nil {
		return nil, fmt.Errorf("trigger %q: %w", trigger, err)
	}
	return out, nil
}
