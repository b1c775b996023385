package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client address from request headers.
// It checks, in order:
//  1. X-Forwarded-For (first entry of the comma-separated list)
//  2. X-Real-IP
//  3. RemoteAddr
//
// Azure front ends append the source port to X-Forwarded-For entries
// ("203.0.113.195:51234"), so any port is stripped from the result.
func GetClientIP(r *http.Request) string {
	var addr string
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		addr = strings.TrimSpace(parts[0])
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		addr = strings.TrimSpace(xri)
	} else {
		addr = r.RemoteAddr
	}
	return stripPort(addr)
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
