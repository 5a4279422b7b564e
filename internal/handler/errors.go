package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// ErrorDetail is the machine code plus a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Error codes returned in ErrorDetail.Code.
const (
	codeAlreadyParked   = "already_parked"
	codeNotParked       = "not_parked"
	codeInvalidPlate    = "invalid_plate"
	codeInvalidInterval = "invalid_interval"
	codeValidation      = "validation_error"
	codeNotFound        = "not_found"
	codeStayOpen        = "stay_open"
	codeBadRequest      = "bad_request"
	codeTooLarge        = "request_too_large"
	codeInternal        = "internal_error"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the client has gone; nothing useful to do
	json.NewEncoder(w).Encode(v)
}

// writeError writes an ErrorResponse.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeServiceError maps a domain sentinel to its status code and error code.
// Anything unrecognised is logged and reported as a 500 without leaking detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPlate):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidPlate, unwrapMessage(err))
	case errors.Is(err, domain.ErrAlreadyParked):
		writeError(w, http.StatusConflict, codeAlreadyParked, "vehicle is already parked")
	case errors.Is(err, domain.ErrNotParked):
		writeError(w, http.StatusNotFound, codeNotParked, "vehicle is not parked")
	case errors.Is(err, domain.ErrInvalidInterval):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidInterval, "exit time is before entry time")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, codeValidation, unwrapMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "stay not found")
	default:
		s.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// writeDecodeError reports a body that could not be read as JSON.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, "request body must be a JSON object")
}

// callSite matches the "pkg.Type.Method: " prefixes added as errors are
// wrapped on their way up.
var callSite = regexp.MustCompile(`^[a-z]+\.[A-Za-z]+\.[A-Za-z]+: `)

// unwrapMessage extracts the human-readable part from a wrapped sentinel error.
// e.g. "service.StayService.Enter: validation error: entry_time must not be in the future"
// → "entry_time must not be in the future"
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for {
		loc := callSite.FindStringIndex(msg)
		if loc == nil {
			break
		}
		msg = msg[loc[1]:]
	}
	for _, prefix := range []string{
		domain.ErrValidation.Error() + ": ",
		domain.ErrInvalidPlate.Error() + ": ",
	} {
		if len(msg) > len(prefix) && strings.HasPrefix(msg, prefix) {
			return msg[len(prefix):]
		}
	}
	return msg
}
