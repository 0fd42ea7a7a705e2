package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"gosurv/internal/errors"
	"gosurv/internal/observability"
)

// StatusFor maps an error code to an HTTP status
func StatusFor(code string) int {
	switch {
	case code == errors.CodeNotFound:
		return http.StatusNotFound
	case code == errors.CodeParseError, strings.HasPrefix(code, "INVALID_") && code != errors.CodeInvalidEvent:
		return http.StatusBadRequest
	case errors.IsFitFailure(code):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err once, as {"error", "code"}
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "UNKNOWN" {
		code = errors.CodeInternalError
	}
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file is too large", Code: errors.CodeInvalidInput})
		return
	}

	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed: %v", err)
	}
	observability.RecordError("api", code)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
