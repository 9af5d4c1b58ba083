package rel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCollection is returned for a declaration without a target set.
	ErrNoCollection = errors.New("no collection was given")
	// ErrNoMembership is returned for a to-many declaration with neither a
	// foreign key nor a filter.
	ErrNoMembership = errors.New("no foreign key or filter was given")
)

// ConfigurationError reports a relation declaration that can never resolve.
// It is not retryable; the declaration has to be fixed.
type ConfigurationError struct {
	Relation string
	Kind     Kind
	Subject  string // identity of the subject being resolved, if any
	Err      error  // ErrNoCollection when nil
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s relation %q: %v", e.Kind, e.Relation, e.Unwrap())
	}
	return fmt.Sprintf("%s relation %q on %s: %v", e.Kind, e.Relation, e.Subject, e.Unwrap())
}

// Unwrap allows errors.Is(err, ErrNoCollection) and errors.Is(err, ErrNoMembership).
func (e *ConfigurationError) Unwrap() error {
	if e.Err == nil {
		return ErrNoCollection
	}
	return e.Err
}
