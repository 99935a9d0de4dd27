package descriptor

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDescriptor       = errors.New("descriptor: invalid descriptor")
	ErrConflictingDesiredState = errors.New("descriptor: conflicting desired state")
)

// InvalidDescriptorError reports a descriptor that failed validation.
type InvalidDescriptorError struct {
	Name   string
	Field  string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid descriptor: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid descriptor %q: %s: %s", e.Name, e.Field, e.Reason)
}

func (e *InvalidDescriptorError) Is(target error) bool {
	return target == ErrInvalidDescriptor
}

// ConflictingDesiredStateError reports the same package declared both
// present and absent under one manager.
type ConflictingDesiredStateError struct {
	Key   Key
	First State
	Later State
}

func (e *ConflictingDesiredStateError) Error() string {
	return fmt.Sprintf("conflicting desired state for %s: declared %s and %s", e.Key, e.First, e.Later)
}

func (e *ConflictingDesiredStateError) Is(target error) bool {
	return target == ErrConflictingDesiredState
}
