// Package httputil centralizes JSON encoding and domain error translation for
// the HTTP transport so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "authgate/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error code onto an HTTP status and renders the
// stable message. Wrapped causes are never exposed to the caller.
func WriteError(w http.ResponseWriter, err error) {
	var e *dErrors.Error
	code := dErrors.CodeOf(err)
	message := "internal error"
	if errors.As(err, &e) {
		message = e.Message
	}
	WriteJSON(w, statusFor(code), errorBody{
		Error:            string(code),
		ErrorDescription: message,
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
