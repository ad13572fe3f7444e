package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of these.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

var (
	ErrUserNotFound        = newError(ErrNotFound, "user not found")
	ErrDoctorNotFound      = newError(ErrNotFound, "Doctor not found")
	ErrPatientNotFound     = newError(ErrNotFound, "Patient not found")
	ErrAppointmentNotFound = newError(ErrNotFound, "Appointment not found")

	ErrSlotTaken         = newError(ErrConflict, "Slot not available - doctor already has an appointment at this time")
	ErrConcurrentUpdate  = newError(ErrConflict, "appointment was modified concurrently, please retry")
	ErrNotOwner          = newError(ErrForbidden, "You can only modify your own appointments")
	ErrConfirmNotAllowed = newError(ErrForbidden, "Only the patient can confirm an appointment")
	ErrCancelNotAllowed  = newError(ErrForbidden, "Only the patient can cancel an appointment")
	ErrCompleteForbidden = newError(ErrForbidden, "Only doctors can mark appointments as completed")

	ErrInvalidReason     = newError(ErrBadRequest, "reason must be between 1 and 500 characters")
	ErrCannotConfirm     = newError(ErrBadRequest, "Can only confirm scheduled appointments")
	ErrCannotCancel      = newError(ErrBadRequest, "Cannot cancel completed or no-show appointments")
	ErrInvalidTransition = newError(ErrBadRequest, "invalid status transition")
	ErrInvalidGroupBy    = newError(ErrBadRequest, "Invalid groupBy parameter. Use 'month' or 'day'")
	ErrInvalidMonth      = newError(ErrBadRequest, "Invalid month format. Use YYYY-MM")
	ErrInvalidDate       = newError(ErrBadRequest, "Invalid date format. Use YYYY-MM-DD")
)

// kindError carries a user-facing message, its kind and an optional cause.
type kindError struct {
	kind  error
	msg   string
	cause error
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// badRequest wraps a validation failure so that errors.Is(err, ErrBadRequest) holds and
// errors.As still reaches the cause.
func badRequest(cause error) error {
	return &kindError{kind: ErrBadRequest, msg: cause.Error(), cause: cause}
}

func internal(op string, cause error) error {
	return &kindError{kind: ErrInternal, msg: fmt.Sprintf("%s: %v", op, cause), cause: cause}
}
