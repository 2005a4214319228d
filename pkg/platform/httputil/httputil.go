package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "upandup/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates any error carrying a domain code into an HTTP
// response. Errors without a code become 500s without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	var coded dErrors.Coder
	if errors.As(err, &coded) {
		code := coded.DomainCode()
		response := map[string]string{
			"error": DomainCodeToHTTPCode(code),
		}
		if msg := err.Error(); msg != "" && code != dErrors.CodeInternal {
			response["error_description"] = msg
		}
		WriteJSON(w, DomainCodeToHTTPStatus(code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeAlreadyTerminal, dErrors.CodeAlreadySet:
		return http.StatusConflict
	case dErrors.CodeBusy:
		return http.StatusLocked
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the JSON error string.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeAlreadyTerminal:
		return "already_terminal"
	case dErrors.CodeAlreadySet:
		return "already_set"
	case dErrors.CodeBusy:
		return "worker_busy"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeUnavailable:
		return "gateway_unavailable"
	case dErrors.CodeTimeout:
		return "gateway_timeout"
	default:
		return "internal_error"
	}
}
