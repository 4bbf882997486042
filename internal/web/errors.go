package web

// errors.go provides unified error response handling for the web layer.
//
// Handlers call respondError with whatever the core returned; the error
// is logged with full technical detail and the request ID, mapped via
// core.MapError to a user-facing message, and written as JSON with a
// status code derived from the error kind.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github.com/mitie-ops/custodia/internal/core"
	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/importer"
	"github.com/mitie-ops/custodia/internal/normalize"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error server-side and returns the
// mapped user message as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := errorStatus(err)
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// errorStatus derives the HTTP status from the error kind. Anything
// unrecognized is a 500.
func errorStatus(err error) int {
	var ve *normalize.ValidationError
	var cve *custody.ViolationError
	var ufe *importer.UnsupportedFormatError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ufe):
		return http.StatusBadRequest
	case errors.As(err, &cve):
		return http.StatusConflict
	case errors.Is(err, core.ErrSignatureInvalid):
		return http.StatusForbidden
	case errors.Is(err, core.ErrDeletePassword):
		return http.StatusForbidden
	case errors.Is(err, pgx.ErrNoRows):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
