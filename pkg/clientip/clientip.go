package clientip

import (
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

var trustProxy atomic.Bool

// TrustProxyHeaders makes RealClientIP honor X-Forwarded-For and X-Real-IP.
// Enable it only when the app sits behind a proxy that overwrites them
// (e.g. Render or Fly edge); otherwise clients can spoof their address.
func TrustProxyHeaders(enabled bool) {
	trustProxy.Store(enabled)
}

// RealClientIP returns the client IP from the request. By default it uses
// r.RemoteAddr only. Used for rate limiting and logging.
func RealClientIP(r *http.Request) string {
	if trustProxy.Load() {
		if ip := forwardedFor(r); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// forwardedFor returns the left-most valid address from X-Forwarded-For,
// then X-Real-IP.
func forwardedFor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xr) != nil {
		return xr
	}
	return ""
}
