package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/httputil"
	"evoto/pkg/platform/middleware/auth"
	"evoto/pkg/requestcontext"
)

// Middleware limits requests per authenticated subject, or per client IP when
// no session is attached. A failing store lets the request through.
type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewMiddleware returns nil when limit is not positive; Limit on a nil
// Middleware is a pass-through.
func NewMiddleware(store Store, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &Middleware{store: store, limit: limit, window: window, logger: logger}
}

// Limit counts requests under the named bucket.
func (m *Middleware) Limit(bucket string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := bucket + ":" + callerKey(r)

			result, err := m.store.Allow(ctx, key, m.limit, m.window)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"bucket", bucket,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"bucket", bucket,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(time.Now())))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited,
					"too many verification attempts, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if s := auth.SessionFrom(r.Context()); s != nil {
		return "sub:" + s.SubjectID()
	}
	return "ip:" + requestcontext.ClientIP(r.Context())
}
