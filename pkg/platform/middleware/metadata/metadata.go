// Package metadata records who is calling: client IP and User-Agent.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"evoto/pkg/requestcontext"
)

// ClientMetadata stores the client IP and User-Agent in the request context.
// Ballot records copy both, so they are captured for every request.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the socket peer. Header values that are not IP addresses are skipped.
func ClientIPFromRequest(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); validIP(first) {
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); validIP(xri) {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func validIP(s string) bool {
	return net.ParseIP(strings.TrimSpace(s)) != nil
}
