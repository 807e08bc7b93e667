package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver resolves the address that login attempts are recorded and
// locked out under, and that request throttling keys on. Forwarding headers
// are honored only when the immediate peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver accepts CIDRs and bare addresses; a bare address
// trusts exactly that host.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}
	for _, raw := range trustedProxies {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		prefix, err := parseTrustedProxy(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		resolver.trusted = append(resolver.trusted, prefix)
	}
	return resolver, nil
}

func parseTrustedProxy(value string) (netip.Prefix, error) {
	if addr, err := netip.ParseAddr(value); err == nil {
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	prefix, err := netip.ParsePrefix(value)
	if err != nil {
		return netip.Prefix{}, err
	}
	return prefix.Masked(), nil
}

func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := peerAddr(req.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !r.trusts(peer) {
		return peer.String()
	}
	// Behind a trusted proxy: the leftmost parseable forwarded entry is the
	// original client, then X-Real-IP, then the proxy itself.
	for _, part := range strings.Split(req.Header.Get("X-Forwarded-For"), ",") {
		if addr, ok := headerAddr(part); ok {
			return addr.String()
		}
	}
	if addr, ok := headerAddr(req.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return peer.String()
}

// Middleware resolves the client IP once and stores it on the request context.
func (r *ClientIPResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := context.WithValue(req.Context(), clientIPKey, r.Resolve(req))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// KeyFunc is the throttling key: the resolved client IP.
func (r *ClientIPResolver) KeyFunc(req *http.Request) (string, error) {
	if ip, ok := req.Context().Value(clientIPKey).(string); ok {
		return ip, nil
	}
	return r.Resolve(req), nil
}

// ClientIP returns the address stored by ClientIPResolver.Middleware.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok {
		return ip
	}
	if addr, ok := peerAddr(r.RemoteAddr); ok {
		return addr.String()
	}
	return "unknown"
}

func (r *ClientIPResolver) trusts(addr netip.Addr) bool {
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	return headerAddr(remoteAddr)
}

// headerAddr parses one forwarded value: a bare or quoted address, possibly
// with a port or IPv6 brackets.
func headerAddr(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(strings.Trim(value, "[]")); err == nil {
		return addr.Unmap(), true
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		if addr, err := netip.ParseAddr(host); err == nil {
			return addr.Unmap(), true
		}
	}
	return netip.Addr{}, false
}
