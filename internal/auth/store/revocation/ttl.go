package revocation

import (
	"fmt"
	"time"

	"repairhub/pkg/platform/sentinel"
)

// ErrInvalidTTL rejects a revocation that would expire immediately and leave
// the token usable.
var ErrInvalidTTL = fmt.Errorf("revocation ttl must be positive: %w", sentinel.ErrInvalidState)

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w (got %s)", ErrInvalidTTL, ttl)
	}
	return nil
}
