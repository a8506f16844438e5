package correction

import (
	"fmt"

	"github.com/revcycle/revcycle/internal/domain/rejection"
)

// UncorrectableReasonError reports that a claim cannot be auto-corrected:
// either the reason is marked non-correctable or no strategy is registered
// for its category. Callers route these to manual review and never retry.
type UncorrectableReasonError struct {
	Category rejection.Category
	RawCode  string
}

func (e *UncorrectableReasonError) Error() string {
	return fmt.Sprintf("rejection %s (category %s) is not auto-correctable", e.RawCode, e.Category)
}

// UnresolvedFieldError reports that a lookup-sourced fix could not resolve a
// value for the named field. Partial corrections are never returned.
type UnresolvedFieldError struct {
	Field string
	Key   string
}

func (e *UnresolvedFieldError) Error() string {
	return fmt.Sprintf("field %s: lookup key %q resolved no value", e.Field, e.Key)
}
