package domain

import "fmt"

// Error types for consistent error handling across the core and the BFA.
// Callers discriminate with errors.As.

// ErrValidation indicates input rejected locally, before any network call.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates the resource already exists (duplicate registration).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// ErrInvalidCredentials indicates the backend rejected an email/password pair.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "Credenciales inválidas"
}

// ErrUnauthorized indicates the session credential is missing, expired or was
// rejected mid-session. The session has been torn down when this is returned.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrSessionBusy indicates another login or restore is still establishing
// the session. The current session is left untouched.
type ErrSessionBusy struct{}

func (e *ErrSessionBusy) Error() string {
	return "Ya hay un inicio de sesión en curso"
}

// ErrNetwork indicates the backend could not be reached (no response).
type ErrNetwork struct {
	Operation string
	Err       error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("backend unreachable [%s]: %v", e.Operation, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrServer indicates the backend answered with a rejection. Message is the
// backend's own text and is meant to be shown as is.
type ErrServer struct {
	Status  int
	Message string
}

func (e *ErrServer) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}
