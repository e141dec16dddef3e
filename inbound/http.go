package inbound

import (
	"encoding/json"
	"io"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-social-connect/core"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// Handler exposes the dispatcher on a single JSON endpoint. CORS is fully
// open: the connector sits behind the application's own session check, and
// the callback leg arrives from arbitrary provider redirects.
type Handler struct {
	dispatcher *Dispatcher
	logger     core.Logger
}

func NewHandler(dispatcher *Dispatcher, opts ...HandlerOption) (*Handler, error) {
	if dispatcher == nil {
		return nil, core.NewInvalidActionError("Connector dispatcher is required")
	}
	handler := &Handler{
		dispatcher: dispatcher,
		logger:     glog.Ensure(dispatcher.logger),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(handler)
	}
	return handler, nil
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req Request
	body := io.LimitReader(r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	response, err := h.dispatcher.Dispatch(r.Context(), r.Header.Get("Authorization"), req)
	if err != nil {
		status, message := clientError(err)
		if h.logger != nil {
			h.logger.Error("dispatch failed", "action", req.Action, "platform", req.Platform, "status", status, "error", err)
		}
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// clientError resolves the HTTP status and safe message for a dispatch
// failure. Anything without a mapped envelope collapses to a generic 500
// so provider bodies and internals never reach the caller.
func clientError(err error) (int, string) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		status := richErr.Code
		if status < http.StatusBadRequest || status > http.StatusNetworkAuthenticationRequired {
			status = http.StatusInternalServerError
		}
		message := richErr.Message
		if message == "" {
			message = "Internal server error"
		}
		return status, message
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeCORSHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
