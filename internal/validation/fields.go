package validation

import (
	dErrors "repairhub/pkg/domain-errors"
)

// FieldErrors collects every reason each input field was rejected.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, reason string) {
	f[field] = append(f[field], reason)
}

// Check adds reason to field when ok is false.
func (f FieldErrors) Check(ok bool, field, reason string) {
	if !ok {
		f.Add(field, reason)
	}
}

func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Err returns nil when no field failed, otherwise a validation domain error
// carrying the field map.
func (f FieldErrors) Err() error {
	if f.Empty() {
		return nil
	}
	return dErrors.WithFields("invalid input", f)
}
