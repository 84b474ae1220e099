package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"evoto/pkg/requestcontext"
)

type stubSession struct{ subject, id string }

func (s stubSession) SubjectID() string { return s.subject }
func (s stubSession) SessionID() string { return s.id }

type stubValidator map[string]Session

func (v stubValidator) ValidateSession(token string) (Session, error) {
	if s, ok := v[token]; ok {
		return s, nil
	}
	return nil, errors.New("bad token")
}

func TestRequireSession(t *testing.T) {
	validator := stubValidator{"good": stubSession{subject: "sub-1", id: "sid-1"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotSubject, gotSession string
	var gotValue Session
	h := RequireSession(validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = requestcontext.SubjectID(r.Context())
		gotSession = requestcontext.SessionID(r.Context())
		gotValue = SessionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/units", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "sub-1", gotSubject)
		assert.Equal(t, "sid-1", gotSession)
		assert.Equal(t, stubSession{subject: "sub-1", id: "sid-1"}, gotValue)
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/units", nil)
		r.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/units", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
	})

	t.Run("invalid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/units", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSessionFromEmptyContext(t *testing.T) {
	assert.Nil(t, SessionFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
