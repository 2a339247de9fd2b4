// Package sentinel holds infrastructure facts that stores return (optionally
// wrapped) so callers can branch with errors.Is. Validation failures use
// pkg/domain-errors instead.
package sentinel

import "errors"

var (
	// ErrInvalidState: the store was used before Init, after Close, or with an
	// argument that cannot be applied to its current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrCorrupt: a persisted record could not be decoded.
	ErrCorrupt = errors.New("corrupt record")
)
