package usecase

import "errors"

var (
	// ErrValidation indicates a structurally invalid request.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced tag, buyer, user or assignment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request collides with an existing record.
	ErrConflict = errors.New("conflict")
	// ErrDependencyUnavailable indicates a backing store could not be reached.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
