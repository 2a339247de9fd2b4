package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairhub/pkg/platform/sentinel"
)

func TestInMemoryTRL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	trl := NewInMemoryTRL(WithClock(func() time.Time { return now }))

	require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(time.Minute)
	revoked, err = trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry expires with the token")
	assert.Equal(t, 1, trl.Sweep())
	assert.Equal(t, 0, trl.Sweep())
}

func TestInMemoryTRL_RejectsNonPositiveTTL(t *testing.T) {
	err := NewInMemoryTRL().RevokeToken(context.Background(), "jti", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestInMemoryTRL_EmptyJTIIsIgnored(t *testing.T) {
	trl := NewInMemoryTRL()
	require.NoError(t, trl.RevokeToken(context.Background(), "", time.Minute))
	revoked, err := trl.IsRevoked(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, revoked)
}
