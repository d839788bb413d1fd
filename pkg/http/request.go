package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig names the proxy ranges whose forwarding headers are believed.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

// ClientIP returns the caller's IP address. Forwarding headers are honored
// only when the direct peer is a trusted proxy, otherwise a client could spoof
// its address and defeat per-IP rate limits and audit trails.
func ClientIP(r *http.Request, cfg *IPConfig) string {
	peer := remoteIP(r)

	if cfg != nil && trustedProxy(peer, cfg.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, candidate := range strings.Split(xff, ",") {
				candidate = strings.TrimSpace(candidate)
				if net.ParseIP(candidate) != nil {
					return candidate
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}

	return peer
}

func remoteIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func trustedProxy(ip string, ranges []string) bool {
	peer := net.ParseIP(ip)
	if peer == nil {
		return false
	}
	for _, cidr := range ranges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(peer) {
			return true
		}
	}
	return false
}
