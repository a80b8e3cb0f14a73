// Package httputil maps domain errors onto HTTP responses. The body shape is
// {"error": code, "error_description": text}; the description is omitted for
// internal errors so store and driver details never reach clients.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "gatehouse/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:       http.StatusBadRequest,
	dErrors.CodeUnauthorized:     http.StatusUnauthorized,
	dErrors.CodeForbidden:        http.StatusForbidden,
	dErrors.CodeNotFound:         http.StatusNotFound,
	dErrors.CodeConflict:         http.StatusConflict,
	dErrors.CodeInvalidReference: http.StatusUnprocessableEntity,
	dErrors.CodeInvalidState:     http.StatusConflict,
	dErrors.CodeInternal:         http.StatusInternalServerError,
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError renders err as JSON with the status mapped from its code.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.ErrorDescription = de.Description
		}
	}

	WriteJSON(w, status, body)
}

// WriteJSON renders v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
