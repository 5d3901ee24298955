package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mcpguard/mcpserver/internal/mcp"
)

const echoName = "echo"

type echoArgs struct {
	Message *string `json:"message" jsonschema:"description=The message to echo"`
}

type echoResult struct {
	Result string `json:"result"`
}

// Echo returns the message argument, prefixed with the optional
// tools.echo.prefix setting. The prefix is read on every call so a config
// reload takes effect immediately.
func Echo(settings Settings) (mcp.Tool, mcp.Handler) {
	tool := mcp.Tool{
		Name:        echoName,
		Description: "Echo a message back to the client.",
		InputSchema: inputSchema[echoArgs](),
	}

	handler := func(_ context.Context, raw json.RawMessage) (interface{}, error) {
		var args echoArgs
		if err := decodeArgs(raw, &args, "Missing required parameter: message"); err != nil {
			return nil, err
		}
		if args.Message == nil {
			return nil, errors.New("Missing required parameter: message")
		}
		return echoResult{Result: settings.String(echoName, "prefix", "") + *args.Message}, nil
	}

	return tool, handler
}
