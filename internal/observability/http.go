package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceIDFromRequest prefers the X-Device-Id header and falls back to the
// device_id query parameter, which browser websocket clients use because
// they cannot set custom headers on the handshake.
func DeviceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Device-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("device_id")
}

// RequestIDFromRequest returns the inbound correlation id, if any.
func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// IPFromRequest resolves the client address, trusting the first hop of
// X-Forwarded-For when a proxy set it.
func IPFromRequest(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
