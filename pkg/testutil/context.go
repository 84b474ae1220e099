package testutil

import (
	"net/http"

	"evoto/pkg/platform/middleware/auth"
	"evoto/pkg/platform/middleware/device"
	"evoto/pkg/requestcontext"
)

// WithSession attaches s the way auth.RequireSession does for authenticated requests.
func WithSession(req *http.Request, s auth.Session) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), s))
}

// WithClient fills the request metadata the middleware chain would normally
// derive: client IP, user agent, parsed device and request ID.
func WithClient(req *http.Request, clientIP, userAgent, requestID string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent)
	ctx = requestcontext.WithRequestID(ctx, requestID)
	ctx = device.WithInfo(ctx, device.Parse(userAgent))
	return req.WithContext(ctx)
}
