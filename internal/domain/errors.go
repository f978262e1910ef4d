package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidReport      = errors.New("invalid_report")
	ErrMalformedReport    = errors.New("malformed_report")
	ErrReportIDAssigned   = errors.New("report_id_already_assigned")
	ErrStorageUnavailable = errors.New("storage_unavailable")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrReportNotFound     = errors.New("report_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrInvalidReport) match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidReport
}

// ConstraintViolation is returned when a report cannot be persisted because
// a required column is missing. No report id is consumed.
type ConstraintViolation struct {
	Field string
}

func (e *ConstraintViolation) Error() string {
	return "constraint violation: " + e.Field + " must not be null"
}
