package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig lists the proxy CIDR ranges whose forwarding headers are trusted.
type IPConfig struct {
	TrustedProxies []string
}

// ExtractClientIP resolves the caller's address. Forwarding headers are
// honored only when the TCP peer is a trusted proxy; anyone else could
// spoof the identity the rate limiter and CSRF store key on.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)

	if config == nil || !isTrustedProxy(peer, config.TrustedProxies) {
		return peer
	}

	if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

// peerAddr is RemoteAddr with any port stripped.
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// firstForwardedIP returns the first parseable address in an X-Forwarded-For
// list, which is the originating client.
func firstForwardedIP(header string) string {
	for _, part := range strings.Split(header, ",") {
		if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}

func isTrustedProxy(addr string, trusted []string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}
