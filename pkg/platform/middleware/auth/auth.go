package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/httputil"
	"evoto/pkg/requestcontext"
)

// CookieName carries the app session token for browser clients.
const CookieName = "evoto_session"

// Session is what the middleware needs from a validated session token.
type Session interface {
	SubjectID() string
	SessionID() string
}

// SessionValidator validates a raw session token.
type SessionValidator interface {
	ValidateSession(token string) (Session, error)
}

type contextKeySession struct{}

// ContextKeySession is exported for tests that build contexts by hand.
var ContextKeySession = contextKeySession{}

// SessionFrom returns the session attached by RequireSession, or nil.
func SessionFrom(ctx context.Context) Session {
	s, _ := ctx.Value(ContextKeySession).(Session)
	return s
}

// WithSession attaches s and its identifiers to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	ctx = context.WithValue(ctx, ContextKeySession, s)
	ctx = requestcontext.WithSubjectID(ctx, s.SubjectID())
	return requestcontext.WithSessionID(ctx, s.SessionID())
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// RequireSession rejects requests without a valid session with 401.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing session",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
				return
			}

			s, err := validator.ValidateSession(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid session",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "session is invalid or expired"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, s)))
		})
	}
}
