// Package handler serves the login, callback and logout endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"evoto/internal/identity/models"
	"evoto/internal/identity/session"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/httputil"
	"evoto/pkg/platform/middleware/auth"
	"evoto/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Authenticator,SessionIssuer,VerificationSessions

const stateCookieName = "evoto_oauth_state"

// Authenticator is the identity provider's authorization-code flow.
type Authenticator interface {
	AuthCodeURL(state string) string
	LogoutURL() string
	Exchange(ctx context.Context, code string) (models.Claims, error)
}

// SessionIssuer mints and reads app session tokens.
type SessionIssuer interface {
	Issue(claims models.Claims, loginAt time.Time) (string, *session.Session, error)
	Validate(token string) (*session.Session, error)
}

// VerificationSessions opens and drops the per-login verification state.
type VerificationSessions interface {
	Begin(ctx context.Context, sessionID, subject string, loginAt time.Time) error
	Discard(ctx context.Context, sessionID string) error
}

// DefaultPostLoginURL lists the voter's units, the first thing the voting page needs.
const DefaultPostLoginURL = "/units"

// Settings holds the browser-facing knobs of the login flow.
type Settings struct {
	CookieSecure bool
	// PostLoginURL is where a successful callback sends the browser.
	PostLoginURL string
}

type Handler struct {
	auth         Authenticator
	sessions     SessionIssuer
	verification VerificationSessions
	logger       *slog.Logger
	cookieSecure bool
	postLogin    string
}

func New(a Authenticator, sessions SessionIssuer, verification VerificationSessions, logger *slog.Logger, settings Settings) *Handler {
	postLogin := settings.PostLoginURL
	if postLogin == "" {
		postLogin = DefaultPostLoginURL
	}
	return &Handler{
		auth:         a,
		sessions:     sessions,
		verification: verification,
		logger:       logger,
		cookieSecure: settings.CookieSecure,
		postLogin:    postLogin,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/login", h.HandleLogin)
	r.Get("/callback", h.HandleCallback)
	r.Get("/logout", h.HandleLogout)
}

// HandleLogin redirects to the hosted login page with a fresh state value.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback completes the code exchange, stamps the login time, resets
// the upload attempt counter and sets the session cookie.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		h.logger.WarnContext(ctx, "identity provider returned an error",
			"error", providerErr,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login was not completed"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "authorization code is required"))
		return
	}
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.logger.WarnContext(ctx, "login state mismatch", "request_id", requestID)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "login state mismatch, please sign in again"))
		return
	}
	h.clearCookie(w, stateCookieName)

	claims, err := h.auth.Exchange(ctx, code)
	if err != nil {
		h.logger.WarnContext(ctx, "authorization code exchange failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	loginAt := requestcontext.Now(ctx).UTC()
	token, s, err := h.sessions.Issue(claims, loginAt)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue session",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not start session"))
		return
	}
	// The verification session is recreated lazily on first upload if this fails.
	if err := h.verification.Begin(ctx, s.ID, claims.Subject, loginAt); err != nil {
		h.logger.WarnContext(ctx, "failed to open verification session",
			"error", err,
			"request_id", requestID,
		)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.InfoContext(ctx, "voter logged in",
		"subject", claims.Subject,
		"session_id", s.ID,
		"request_id", requestID,
	)
	http.Redirect(w, r, h.postLogin, http.StatusFound)
}

// HandleLogout drops local state and ends the provider session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if token := auth.TokenFromRequest(r); token != "" {
		if s, err := h.sessions.Validate(token); err == nil {
			if err := h.verification.Discard(ctx, s.ID); err != nil {
				h.logger.WarnContext(ctx, "failed to discard verification session",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
		}
	}
	h.clearCookie(w, auth.CookieName)
	http.Redirect(w, r, h.auth.LogoutURL(), http.StatusFound)
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
