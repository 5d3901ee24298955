package stdio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mcpguard/mcpserver/internal/mcp"
	"github.com/mcpguard/mcpserver/internal/tools"
)

func newTestHandler(in io.Reader, out io.Writer) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := mcp.NewRegistry(logger)
	tools.Register(reg, nil, nil)
	d := mcp.NewDispatcher(reg, mcp.ServerInfo{Name: "stdio-test", Version: "1.0.0"})
	return NewHandler(d, WithIO(in, out), WithLogger(logger))
}

func TestServe(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "echo round trip",
			input: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}` + "\n",
			want:  []string{`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{\"result\":\"hi\"}"}],"isError":false}}`},
		},
		{
			name:  "unknown method",
			input: `{"jsonrpc":"2.0","id":7,"method":"foo/bar"}` + "\n",
			want:  []string{`{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"Method not found: foo/bar"}}`},
		},
		{
			name: "notifications produce no output",
			input: `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
				`{"jsonrpc":"2.0","method":"tools/list"}` + "\n" +
				`{"jsonrpc":"2.0","id":null,"method":"foo/bar"}` + "\n",
			want: nil,
		},
		{
			name:  "blank lines ignored",
			input: "\n   \n\t\n" + `{"jsonrpc":"2.0","id":"x","method":"tools/call"}` + "\n\n",
			want:  []string{`{"jsonrpc":"2.0","id":"x","error":{"code":-32602,"message":"Invalid params"}}`},
		},
		{
			name:  "last line without newline",
			input: `{"jsonrpc":"2.0","id":2,"method":"foo"}`,
			want:  []string{`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found: foo"}}`},
		},
		{
			name:  "unparsable line without id dropped",
			input: "garbage\n" + `{"method":"x"}` + "\n" + `{"jsonrpc":"2.0","id":3,"method":"foo"}` + "\n",
			want:  []string{`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"Method not found: foo"}}`},
		},
		{
			name:  "unparsable line with object id dropped",
			input: `{"jsonrpc":"2.0","id":{"a":1},"method":"foo"}` + "\n",
			want:  nil,
		},
		{
			name:  "member names are case sensitive",
			input: `{"JSONRPC":"2.0","ID":9,"METHOD":"foo/bar"}` + "\n" + `{"jsonrpc":"2.0","ID":9,"id":4,"method":"foo"}` + "\n",
			want:  []string{`{"jsonrpc":"2.0","id":4,"error":{"code":-32601,"message":"Method not found: foo"}}`},
		},
		{
			name: "responses keep request order",
			input: `{"jsonrpc":"2.0","id":1,"method":"foo"}` + "\n" +
				`{"jsonrpc":"2.0","id":2,"method":"bar"}` + "\n",
			want: []string{
				`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found: foo"}}`,
				`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found: bar"}}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := newTestHandler(strings.NewReader(tt.input), &out).Serve(context.Background()); err != nil {
				t.Fatalf("Serve: %v", err)
			}
			var got []string
			if out.Len() > 0 {
				got = strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d lines %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %s\nwant     %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestServeParseErrorWithID(t *testing.T) {
	var out bytes.Buffer
	in := `{"jsonrpc":"2.0","id":42,"method":17}` + "\n"
	if err := newTestHandler(strings.NewReader(in), &out).Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	line := out.String()
	if !strings.HasPrefix(line, `{"jsonrpc":"2.0","id":42,"error":{"code":-32700,"message":"Parse error: `) {
		t.Errorf("got %s", line)
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", line)
	}
}

func TestServeParseErrorWithNullID(t *testing.T) {
	var out bytes.Buffer
	in := `{"jsonrpc":"2.0","id":null,"method":17}` + "\n"
	if err := newTestHandler(strings.NewReader(in), &out).Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	line := out.String()
	if !strings.HasPrefix(line, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error: `) {
		t.Errorf("got %q", line)
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", line)
	}
}

// flushCounter records how many times output reached the underlying writer.
type flushCounter struct {
	bytes.Buffer
	writes int
}

func (f *flushCounter) Write(p []byte) (int, error) {
	f.writes++
	return f.Buffer.Write(p)
}

func TestServeFlushesEveryResponse(t *testing.T) {
	out := &flushCounter{}
	in := `{"jsonrpc":"2.0","id":1,"method":"a"}` + "\n" + `{"jsonrpc":"2.0","id":2,"method":"b"}` + "\n"
	if err := newTestHandler(strings.NewReader(in), out).Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.writes != 2 {
		t.Errorf("writes = %d, want one flush per response", out.writes)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestServeStopsOnWriteFailure(t *testing.T) {
	in := `{"jsonrpc":"2.0","id":1,"method":"a"}` + "\n" + `{"jsonrpc":"2.0","id":2,"method":"b"}` + "\n"
	err := newTestHandler(strings.NewReader(in), failingWriter{}).Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("err = %v, want write failure", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestServeStopsOnReadFailure(t *testing.T) {
	err := newTestHandler(failingReader{}, io.Discard).Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "device gone") {
		t.Errorf("err = %v, want read failure", err)
	}
}

func TestServeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := newTestHandler(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"a"}`+"\n"), &out).Serve(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}
