package location

import "fmt"

type ErrorType string

const (
	ErrPermission  ErrorType = "permission"
	ErrUnavailable ErrorType = "unavailable"
	ErrTimeout     ErrorType = "timeout"
	ErrNetwork     ErrorType = "network"
	ErrTooFar      ErrorType = "too_far"
	ErrGeneral     ErrorType = "general"
)

// W3C GeolocationPositionError codes.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// Error is a classified location failure.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("location %s (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("location %s: %s", e.Type, e.Message)
}

// Retryable reports whether a retry may succeed. Permission and
// unavailability are terminal for the current attempt.
func (e *Error) Retryable() bool {
	return e.Type != ErrPermission && e.Type != ErrUnavailable && e.Type != ErrTooFar
}

// Classify maps a W3C error code to a typed error.
func Classify(code int, message string) *Error {
	e := &Error{Code: code, Message: message}
	switch code {
	case CodePermissionDenied:
		e.Type = ErrPermission
		if e.Message == "" {
			e.Message = "Location permission denied"
		}
	case CodePositionUnavailable:
		e.Type = ErrUnavailable
		if e.Message == "" {
			e.Message = "Location information unavailable"
		}
	case CodeTimeout:
		e.Type = ErrTimeout
		if e.Message == "" {
			e.Message = "Location request timed out"
		}
	default:
		e.Type = ErrGeneral
		if e.Message == "" {
			e.Message = "An unknown error occurred while retrieving location"
		}
	}
	return e
}

// ParseErrorType accepts the wire names of the taxonomy.
func ParseErrorType(s string) (ErrorType, bool) {
	switch t := ErrorType(s); t {
	case ErrPermission, ErrUnavailable, ErrTimeout, ErrNetwork, ErrTooFar, ErrGeneral:
		return t, true
	}
	return "", false
}
