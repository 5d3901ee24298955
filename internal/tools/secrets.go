package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mcpguard/mcpserver/internal/detection"
	"github.com/mcpguard/mcpserver/internal/mcp"
)

const missingText = "Missing required parameter: text"

type scanArgs struct {
	Text *string `json:"text" jsonschema:"description=Text to scan for credentials and other secrets"`
}

type scanResult struct {
	Count    int                `json:"count"`
	Findings []detection.Result `json:"findings"`
}

// ScanSecrets reports gitleaks rule matches in the text argument. Matched
// values are not included in the result.
func ScanSecrets(engine *detection.Engine) (mcp.Tool, mcp.Handler) {
	tool := mcp.Tool{
		Name:        "scan_secrets",
		Description: "Scan text for leaked credentials such as API keys and tokens.",
		InputSchema: inputSchema[scanArgs](),
	}

	handler := func(_ context.Context, raw json.RawMessage) (interface{}, error) {
		var args scanArgs
		if err := decodeArgs(raw, &args, missingText); err != nil {
			return nil, err
		}
		if args.Text == nil {
			return nil, errors.New(missingText)
		}
		findings := engine.Detect(*args.Text)
		return scanResult{Count: len(findings), Findings: findings}, nil
	}

	return tool, handler
}
