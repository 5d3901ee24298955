package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Handler invokes a tool with its raw arguments. A returned error is a
// tool-level failure and is reported to the client with isError set.
// Handlers may be called concurrently.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Registry holds tool descriptors in registration order and a name-indexed
// handler table. It is built once at startup and only read afterwards.
type Registry struct {
	tools    []Tool
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register appends the descriptor and sets the handler for its name.
// Registering a name twice replaces the handler but keeps both descriptors.
func (r *Registry) Register(tool Tool, handler Handler) {
	if _, exists := r.handlers[tool.Name]; exists {
		r.logger.Warn("tool registered more than once; later handler wins", slog.String("tool", tool.Name))
	}
	r.tools = append(r.tools, tool)
	r.handlers[tool.Name] = handler
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Len() int {
	return len(r.tools)
}
