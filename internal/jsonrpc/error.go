package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// CodeParseError means the input was not a well-formed request envelope.
	CodeParseError ErrorCode = -32700
	// CodeInvalidRequest means the JSON sent is not a valid Request object.
	CodeInvalidRequest ErrorCode = -32600
	// CodeMethodNotFound covers unknown top-level methods and unknown tools.
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603
)

type Error struct {
	// The error type that occurred.
	Code ErrorCode `json:"code"`
	// A short description of the error. The message SHOULD be limited
	// to a concise single sentence.
	Message string `json:"message"`
	// Additional information about the error. The value of this member
	// is defined by the sender (e.g. detailed error information, nested errors etc.).
	Data interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}
