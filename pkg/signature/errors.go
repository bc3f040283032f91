package signature

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a signature name is not registered.
	ErrNotFound = errors.New("signature not found")

	// ErrDuplicateName is matched by DuplicateNameError.
	ErrDuplicateName = errors.New("duplicate signature name")

	// ErrInvalidDefinition wraps structural problems in a signature definition.
	ErrInvalidDefinition = errors.New("invalid signature definition")
)

// LoadError identifies a source that could not be decoded or compiled.
type LoadError struct {
	Origin string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load signature %s: %v", e.Origin, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// DuplicateNameError reports a second source declaring an already loaded name.
type DuplicateNameError struct {
	Name        string
	Origin      string
	FirstOrigin string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate signature name %q in %s (first defined in %s)", e.Name, e.Origin, e.FirstOrigin)
}

// Is makes errors.Is(err, ErrDuplicateName) succeed.
func (e *DuplicateNameError) Is(target error) bool {
	return target == ErrDuplicateName
}
