package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairhub/pkg/requestcontext"
)

func TestResolverClientIP(t *testing.T) {
	r, err := NewResolver([]string{"10.0.0.0/8", "192.0.2.7"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct peer", "203.0.113.5:4000", nil, "203.0.113.5"},
		{"untrusted peer cannot spoof forwarding", "203.0.113.5:4000", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "203.0.113.5"},
		{"trusted proxy forwards client", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "198.51.100.9"}, "198.51.100.9"},
		{"rightmost untrusted hop wins", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "6.6.6.6, 198.51.100.9, 10.9.9.9"}, "198.51.100.9"},
		{"all hops trusted yields the first", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "10.0.0.4, 10.0.0.5"}, "10.0.0.4"},
		{"single host entry is trusted", "192.0.2.7:80", map[string]string{"X-Real-IP": "198.51.100.10"}, "198.51.100.10"},
		{"garbage header falls back to peer", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.1.2.3"},
		{"ipv4-mapped peer is unmapped", "[::ffff:203.0.113.5]:80", nil, "203.0.113.5"},
		{"unparseable peer passes through", "pipe", nil, "pipe"},
		{"no peer", "", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, r.ClientIP(req))
		})
	}
}

func TestNewResolverRejectsInvalidRanges(t *testing.T) {
	_, err := NewResolver([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewResolver([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestMiddlewareStoresMetadata(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = GetUserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	req.Header.Set("User-Agent", "curl/8")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.1", ip)
	assert.Equal(t, "curl/8", ua)
}
