// Package tools contains the tools served by mcp-server and the helpers
// they share.
package tools

import (
	"encoding/json"
	"errors"

	"github.com/invopop/jsonschema"
	"github.com/mcpguard/mcpserver/internal/detection"
	"github.com/mcpguard/mcpserver/internal/mcp"
)

// Settings exposes per-tool configuration values.
type Settings interface {
	String(tool, key, fallback string) string
}

type noSettings struct{}

func (noSettings) String(_, _, fallback string) string { return fallback }

// Register adds every available tool to reg. The secret scanner is skipped
// when engine is nil.
func Register(reg *mcp.Registry, settings Settings, engine *detection.Engine) {
	if settings == nil {
		settings = noSettings{}
	}
	reg.Register(Echo(settings))
	if engine != nil {
		reg.Register(ScanSecrets(engine))
	}
}

// inputSchema reflects the argument struct A into an inline object schema.
func inputSchema[A any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	s := r.Reflect(new(A))
	s.Version = ""
	return s
}

// decodeArgs unmarshals tool arguments, mapping any decode failure to a
// single caller-facing message.
func decodeArgs(raw json.RawMessage, dst interface{}, onError string) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New(onError)
	}
	return nil
}
