package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/efreitasn/exechistory/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// writeDomainError maps a service error to its HTTP status and error code.
func writeDomainError(w http.ResponseWriter, err error) {
	var cv *domain.ConstraintViolation
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &cv):
		WriteError(w, http.StatusBadRequest, "constraint_violation", cv.Error())
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, "validation_error", ve.Message)
	case errors.Is(err, domain.ErrReportIDAssigned):
		WriteError(w, http.StatusConflict, "report_id_already_assigned", "Report already has an id")
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, domain.ErrReportNotFound):
		WriteError(w, http.StatusNotFound, "report_not_found", "Report not found")
	case errors.Is(err, domain.ErrStorageUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Report storage is unavailable, retry later")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}
