// Package metadata resolves the caller's IP address and User-Agent once per
// request and stores them in the request context.
package metadata

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"repairhub/pkg/requestcontext"
)

// Unknown is recorded when no peer address can be determined.
const Unknown = "unknown"

// Resolver extracts the client IP. X-Forwarded-For and X-Real-IP are honoured
// only when the direct peer lies inside a trusted proxy range; otherwise any
// caller could pick its own rate-limit key.
type Resolver struct {
	trusted []netip.Prefix
}

// DefaultTrustedProxies covers loopback and private ranges, where load
// balancers of a typical deployment live.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8", "::1/128",
	"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7",
}

// NewResolver parses the trusted proxy CIDRs. A bare address is treated as a
// single-host range.
func NewResolver(trustedCIDRs []string) (*Resolver, error) {
	r := &Resolver{}
	for _, raw := range trustedCIDRs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		r.trusted = append(r.trusted, prefix.Masked())
	}
	return r, nil
}

var defaultResolver = func() *Resolver {
	r, err := NewResolver(DefaultTrustedProxies)
	if err != nil {
		panic(err)
	}
	return r
}()

// ClientMetadata is Middleware with DefaultTrustedProxies.
func ClientMetadata(next http.Handler) http.Handler {
	return defaultResolver.Middleware(next)
}

// Middleware adds client IP and User-Agent to the request context. Apply it
// before anything that keys on the caller.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := requestcontext.WithClientMetadata(req.Context(), r.ClientIP(req), req.Header.Get("User-Agent"))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// ClientIP returns the originating address of req.
func (r *Resolver) ClientIP(req *http.Request) string {
	peer, ok := peerAddr(req.RemoteAddr)
	if !ok {
		if req.RemoteAddr == "" {
			return Unknown
		}
		return req.RemoteAddr
	}
	if !r.isTrusted(peer) {
		return peer.String()
	}

	// Walk X-Forwarded-For right to left: the rightmost untrusted hop is the
	// client as seen by our own proxies.
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			addr = addr.Unmap()
			if !r.isTrusted(addr) || i == 0 {
				return addr.String()
			}
		}
	}
	if xri, err := netip.ParseAddr(strings.TrimSpace(req.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer.String()
}

func (r *Resolver) isTrusted(addr netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) (netip.Addr, bool) {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	return requestcontext.ClientIP(ctx)
}

// GetUserAgent retrieves the User-Agent from the context.
func GetUserAgent(ctx context.Context) string {
	return requestcontext.UserAgent(ctx)
}
