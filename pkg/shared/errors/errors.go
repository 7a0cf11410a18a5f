package errors

import "fmt"

// ExitError carries a terminal exit status through cobra's error path.
// The scan command uses 1 for an unresolved WARNING and 2 for an
// unresolved CRITICAL; the message may be empty when the summary has
// already been printed.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates a new ExitError instance.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}
