package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/mcpguard/mcpserver/internal/jsonrpc"
	"github.com/mcpguard/mcpserver/internal/mcp"
)

const (
	serviceName  = "mcp-server"
	maxBodyBytes = 2 << 20
)

// API serves the protocol endpoint and the auxiliary routes. Handlers run
// concurrently; the request counter is the only state they mutate.
type API struct {
	dispatcher *mcp.Dispatcher
	requests   atomic.Uint64
	logger     *slog.Logger
}

func NewAPI(dispatcher *mcp.Dispatcher, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Requests returns the number of protocol requests received so far.
func (api *API) Requests() uint64 {
	return api.requests.Load()
}

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func (api *API) Metrics(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests_total": api.requests.Load(),
		"status":         "ok",
	})
}

// SSE sends the tool catalogue as a single event-stream frame.
func (api *API) SSE(w http.ResponseWriter, r *http.Request) {
	tools := api.dispatcher.Registry().List()
	data, err := jsonrpc.Marshal(struct {
		Count int        `json:"count"`
		Tools []mcp.Tool `json:"tools"`
	}{
		Count: len(tools),
		Tools: tools,
	})
	if err != nil {
		api.logger.Error("failed to encode tool discovery frame", slog.Any("err", err))
		data = []byte("{}")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "data: %s\n\n", data)
	if err := http.NewResponseController(w).Flush(); err != nil {
		api.logger.Debug("flush unsupported", slog.Any("err", err))
	}
}

// HandleMessage parses one request envelope from the body and replies with
// the dispatcher's envelope. Notifications are answered too, since an HTTP
// exchange always carries a response body.
func (api *API) HandleMessage(w http.ResponseWriter, r *http.Request) {
	api.requests.Add(1)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		api.writeJSON(w, status, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "Parse error: "+err.Error(), nil))
		return
	}

	req, err := jsonrpc.ParseRequest(body)
	if err != nil {
		api.logger.Debug("rejected request envelope", slog.Any("err", err))
		api.writeJSON(w, http.StatusBadRequest, jsonrpc.NewErrorResponse(jsonrpc.RecoverID(body), jsonrpc.CodeParseError, "Parse error: "+err.Error(), nil))
		return
	}

	api.writeJSON(w, http.StatusOK, api.dispatcher.Dispatch(r.Context(), req))
}

func (api *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := jsonrpc.Marshal(v)
	if err != nil {
		api.logger.Error("failed to encode response", slog.Any("err", err))
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		api.logger.Debug("failed to write response", slog.Any("err", err))
	}
}
