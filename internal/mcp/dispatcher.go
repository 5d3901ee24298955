package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpguard/mcpserver/internal/jsonrpc"
)

var emptyArguments = json.RawMessage("{}")

// Dispatcher routes request envelopes to method handlers. It holds no
// mutable state and is shared by every transport.
type Dispatcher struct {
	registry *Registry
	info     ServerInfo
}

func NewDispatcher(registry *Registry, info ServerInfo) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		info:     info,
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch always returns a response envelope, notifications included;
// whether it reaches the client is up to the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case MethodInitialize:
		return jsonrpc.NewResultResponse(req.ID, d.initialize())
	case MethodToolsList:
		return jsonrpc.NewResultResponse(req.ID, &ListToolsResult{Tools: d.registry.List()})
	case MethodToolsCall:
		return d.callTool(ctx, req)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func (d *Dispatcher) initialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      d.info,
	}
}

func (d *Dispatcher) callTool(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if !req.HasParams() {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params", nil)
	}

	// Params that are not an object, or carry a non-string name, resolve to
	// the empty tool name and fail lookup below.
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		params = CallToolParams{}
	}

	handler, ok := d.registry.Lookup(params.Name)
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name), nil)
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = emptyArguments
	}

	return jsonrpc.NewResultResponse(req.ID, invoke(ctx, handler, args))
}

// invoke runs the handler and folds every failure, panics included, into a
// tool result with isError set.
func invoke(ctx context.Context, handler Handler, args json.RawMessage) (result *CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = textResult(fmt.Sprintf("Error: %v", r), true)
		}
	}()

	out, err := handler(ctx, args)
	if err != nil {
		return textResult("Error: "+err.Error(), true)
	}

	text, err := jsonrpc.Marshal(out)
	if err != nil {
		return textResult(fmt.Sprintf("Error: failed to serialize result: %v", err), true)
	}
	return textResult(string(text), false)
}
