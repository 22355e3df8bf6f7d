package clinicerr

import (
	"errors"
	"net/http"
)

// Sentinel errors for the service layer. Handlers translate these to HTTP
// statuses with HTTPStatus; services wrap them with fmt.Errorf("%w: ...") to
// attach context.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotAvailable      = errors.New("appointment is not available")
	ErrUserNotRegistered = errors.New("user is not registered")
	ErrAdmissionDenied   = errors.New("admission denied")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrEmptyCategory     = errors.New("no message templates in category")
	ErrExhaustedPool     = errors.New("message pool exhausted")
	ErrNotifyUnlinked    = errors.New("user has no notification channel")
	ErrStore             = errors.New("storage error")
	ErrTransient         = errors.New("transient error")
)

// HTTPStatus maps a service error to the status code the HTTP surface
// should answer with. Anything unrecognized is a 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAvailable), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUserNotRegistered):
		return http.StatusBadRequest
	case errors.Is(err, ErrAdmissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
