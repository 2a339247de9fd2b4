package cors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowed(t *testing.T) {
	al, err := ParseAllowList([]string{"https://a.com", `/\.b\.com$/`})
	require.NoError(t, err)

	cases := []struct {
		origin string
		want   bool
	}{
		{"https://a.com", true},
		{"", false},
		{"https://x.b.com", true},
		{"https://evil.com", false},
		{"https://a.com.evil.com", false},
		{"http://a.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.origin, func(t *testing.T) {
			assert.Equal(t, tc.want, al.IsAllowed(tc.origin))
		})
	}
}

func TestHostWildcard(t *testing.T) {
	al, err := ParseAllowList([]string{"https://*.shop.example"})
	require.NoError(t, err)

	assert.True(t, al.IsAllowed("https://eu.shop.example"))
	assert.True(t, al.IsAllowed("https://a.b.shop.example"))
	assert.False(t, al.IsAllowed("https://shop.example"))
	assert.False(t, al.IsAllowed("https://evil.example/.shop.example"))
	assert.False(t, al.IsAllowed("http://eu.shop.example"))
}

func TestParseAllowList(t *testing.T) {
	t.Run("invalid pattern is rejected", func(t *testing.T) {
		_, err := ParseAllowList([]string{"/([a-z/"})
		require.Error(t, err)
	})

	t.Run("exact entry must be an absolute url", func(t *testing.T) {
		for _, entry := range []string{"a.com", "https://", "https://a .com"} {
			_, err := ParseAllowList([]string{entry})
			require.Error(t, err, entry)
		}
	})

	t.Run("blank entries and trailing slashes are ignored", func(t *testing.T) {
		al, err := ParseAllowList([]string{" ", "https://a.com/", ""})
		require.NoError(t, err)
		assert.Equal(t, 1, al.Len())
		assert.True(t, al.IsAllowed("https://a.com"))
	})

	t.Run("empty list allows nothing", func(t *testing.T) {
		al, err := ParseAllowList(nil)
		require.NoError(t, err)
		assert.False(t, al.IsAllowed("https://a.com"))
	})

	t.Run("nil list allows nothing", func(t *testing.T) {
		var al *AllowList
		assert.False(t, al.IsAllowed("https://a.com"))
	})
}
