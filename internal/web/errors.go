package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request id; the client receives
// the mapped core.UserMessage as JSON for /api routes and as an HTML
// fragment otherwise. The status code comes from the error's sentinel.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/datafinder/internal/core"
	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/logging"
	"github.com/JonMunkholm/datafinder/internal/match"
	"github.com/JonMunkholm/datafinder/internal/merge"
	"github.com/JonMunkholm/datafinder/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed input from the client.
var errBadRequest = errors.New("bad request")

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, loader.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, loader.ErrExtraction),
		errors.Is(err, match.ErrNotReady),
		errors.Is(err, match.ErrUnknownColumn),
		errors.Is(err, core.ErrNoResults),
		errors.Is(err, merge.ErrNoPhones),
		errors.Is(err, merge.ErrNothingProcessed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing form of it.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)
	if errors.Is(err, errBadRequest) {
		msg = core.UserMessage{
			Message: strings.TrimPrefix(err.Error(), errBadRequest.Error()+": "),
			Action:  "Check the request body",
			Code:    "REQ001",
		}
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
