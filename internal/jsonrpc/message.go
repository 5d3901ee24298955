package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only protocol marker accepted and emitted.
const Version = "2.0"

var null = []byte("null")

// Request is a parsed request envelope. ID and Params are kept as raw JSON
// so they can be echoed back byte for byte.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// HasParams reports whether params were supplied and are not null.
func (r *Request) HasParams() bool {
	return len(r.Params) > 0
}

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a successful response envelope.
func NewResultResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse builds an error response envelope with the given code.
func NewErrorResponse(id json.RawMessage, code ErrorCode, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// ParseRequest decodes one request envelope. Member names are matched
// exactly. The protocol marker and method are required; id must be a scalar
// when present. A null id or params is treated as absent.
func ParseRequest(data []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	rawVersion, ok := fields["jsonrpc"]
	if !ok {
		return nil, errors.New("missing field `jsonrpc`")
	}
	var version string
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return nil, fmt.Errorf("invalid field `jsonrpc`: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", Version, version)
	}

	rawMethod := normalize(fields["method"])
	if rawMethod == nil {
		return nil, errors.New("missing field `method`")
	}
	var method string
	if err := json.Unmarshal(rawMethod, &method); err != nil {
		return nil, fmt.Errorf("invalid field `method`: %w", err)
	}

	id := normalize(fields["id"])
	if !isScalar(id) {
		return nil, fmt.Errorf("id must be a string or number, got: %s", id)
	}

	return &Request{
		JSONRPC: version,
		ID:      id,
		Method:  method,
		Params:  normalize(fields["params"]),
	}, nil
}

// RecoverID extracts the id from a line that failed ParseRequest but is still
// a JSON object, so a ParseError can be addressed to it. A null id is returned
// as the literal null. It returns nil when the object has no id member or the
// id is an object or array.
func RecoverID(data []byte) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	raw, ok := fields["id"]
	if !ok {
		return nil
	}
	id := bytes.TrimSpace(raw)
	if len(id) == 0 || !isScalar(id) {
		return nil
	}
	return id
}

// Marshal encodes v compactly without HTML escaping and without a trailing
// newline, so both transports put identical bytes on the wire.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalize(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, null) {
		return nil
	}
	return trimmed
}

func isScalar(raw json.RawMessage) bool {
	return len(raw) == 0 || (raw[0] != '{' && raw[0] != '[')
}
