// Package stdio serves the dispatcher over a newline-delimited stream,
// normally stdin and stdout. One request is fully answered and flushed
// before the next line is read.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mcpguard/mcpserver/internal/jsonrpc"
	"github.com/mcpguard/mcpserver/internal/mcp"
)

const bufferSize = 8192

type Handler struct {
	dispatcher *mcp.Dispatcher
	r          io.Reader
	w          io.Writer
	l          *slog.Logger
}

// NewHandler constructs a stdio Handler reading os.Stdin and writing
// os.Stdout unless overridden by options.
func NewHandler(dispatcher *mcp.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		dispatcher: dispatcher,
		r:          os.Stdin,
		w:          os.Stdout,
		l:          slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the read-dispatch-write loop. It returns nil on end of input,
// the context error when cancelled between lines, and a wrapped error when
// reading or writing fails.
func (h *Handler) Serve(ctx context.Context) error {
	in := bufio.NewReaderSize(h.r, bufferSize)
	out := bufio.NewWriterSize(h.w, bufferSize)

	h.l.Info("stdio transport started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := in.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("failed to read request: %w", readErr)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if resp := h.handleLine(ctx, trimmed); resp != nil {
				b, err := jsonrpc.Marshal(resp)
				if err != nil {
					h.l.Error("failed to encode response", slog.Any("err", err))
				} else if err := writeLine(out, b); err != nil {
					h.l.Error("failed to write response", slog.Any("err", err))
					return err
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			h.l.Info("stdio transport reached end of input")
			return nil
		}
	}
}

// handleLine returns the response to emit for one input line, or nil when
// nothing should be written.
func (h *Handler) handleLine(ctx context.Context, line []byte) *jsonrpc.Response {
	req, err := jsonrpc.ParseRequest(line)
	if err != nil {
		h.l.Warn("parse error", slog.Any("err", err))
		id := jsonrpc.RecoverID(line)
		if id == nil {
			return nil
		}
		return jsonrpc.NewErrorResponse(id, jsonrpc.CodeParseError, "Parse error: "+err.Error(), nil)
	}

	if req.IsNotification() {
		if req.Method == mcp.NotificationInitialized {
			h.l.Debug("client initialized")
		} else {
			h.l.Debug("ignoring notification", slog.String("method", req.Method))
		}
		return nil
	}

	return h.dispatcher.Dispatch(ctx, req)
}

// writeLine writes one envelope and flushes immediately.
func writeLine(out *bufio.Writer, b []byte) error {
	if _, err := out.Write(b); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if err := out.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}
