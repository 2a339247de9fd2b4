package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.57", "203.0.113.0"},
		{"::ffff:203.0.113.57", "203.0.113.0"},
		{"2001:db8:abcd:12::1", "2001:db8:abcd::"},
		{"unknown", "invalid"},
		{"", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.in))
		})
	}
}
