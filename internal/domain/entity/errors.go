package entity

import "errors"

// Error taxonomy shared by the engine, services and transport layer.
// Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrDependencyFailure = errors.New("dependency failure")
)
