// Package httpapi holds the small set of JSON response helpers shared by
// the middleware chain and every handler, replacing the teacher's
// html/template rendering with the JSON error envelope spec §6 requires.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/bromanko/michael/internal/apperr"
)

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteError maps an error to the spec's status-code disposition table
// and writes its JSON envelope. Unrecognized errors are treated as
// internal and logged with detail; the response carries only a sanitized
// message.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		log.Printf("[HTTP] unhandled error: %v", err)
		writeEnvelope(w, http.StatusInternalServerError, "", "internal server error")
		return
	}

	status := statusFor(appErr.Kind)
	if appErr.Kind == apperr.KindInternal {
		log.Printf("[HTTP] internal error: %v", appErr)
		writeEnvelope(w, status, appErr.Code, "internal server error")
		return
	}
	writeEnvelope(w, status, appErr.Code, appErr.Message)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: message, Code: code})
}
