package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_RejectsMalformedURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz", DefaultOptions())
	require.ErrorContains(t, err, "parse database url")
}
