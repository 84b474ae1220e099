package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoto/internal/identity/models"
	"evoto/internal/platform/config"
	dErrors "evoto/pkg/domain-errors"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func authConfig(domain string) config.AuthConfig {
	return config.AuthConfig{
		Domain:       domain,
		ClientID:     "client-123",
		ClientSecret: "s3cret",
		RedirectURL:  "https://vote.example.com/callback",
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func idToken(t *testing.T, aud string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":               "sub-1",
		"aud":               aud,
		"exp":               exp.Unix(),
		"custom:Nombre":     "Maria Gonzalez",
		"custom:Rut":        "12.345.678-5",
		"custom:Comunidad":  "Los Aromos",
		"custom:Unidad":     "101,B-5",
		"custom:TipoUnidad": "Depto,Bodega",
		"email":             "maria@example.com",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("provider-key"))
	require.NoError(t, err)
	return token
}

func TestAuthCodeAndLogoutURLs(t *testing.T) {
	c := New(authConfig("https://auth.example.com"))

	login, err := url.Parse(c.AuthCodeURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "/login", login.Path)
	assert.Equal(t, "client-123", login.Query().Get("client_id"))
	assert.Equal(t, "code", login.Query().Get("response_type"))
	assert.Equal(t, "openid email profile", login.Query().Get("scope"))
	assert.Equal(t, "https://vote.example.com/callback", login.Query().Get("redirect_uri"))
	assert.Equal(t, "state-1", login.Query().Get("state"))

	logout, err := url.Parse(c.LogoutURL())
	require.NoError(t, err)
	assert.Equal(t, "/logout", logout.Path)
	assert.Equal(t, "https://vote.example.com", logout.Query().Get("logout_uri"))
}

func TestExchange(t *testing.T) {
	var gotForm url.Values
	token := idToken(t, "client-123", now.Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotForm = r.PostForm
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(TokenResponse{IDToken: token, TokenType: "Bearer"})
	}))
	defer srv.Close()

	c := New(authConfig(srv.URL), WithHTTPClient(srv.Client()), WithClock(func() time.Time { return now }))

	claims, err := c.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, models.Claims{
		Subject:      "sub-1",
		Name:         "Maria Gonzalez",
		RUT:          "12.345.678-5",
		Community:    "Los Aromos",
		UnitList:     "101,B-5",
		UnitTypeList: "Depto,Bodega",
		Email:        "maria@example.com",
	}, claims)
	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "s3cret", gotForm.Get("client_secret"))

	_, err = c.Exchange(context.Background(), "stale-code")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestExchangeUnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(authConfig(srv.URL)).Exchange(context.Background(), "code")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestDecodeIDTokenChecksAudienceAndExpiry(t *testing.T) {
	c := New(authConfig("https://auth.example.com"), WithClock(func() time.Time { return now }))

	_, err := c.DecodeIDToken(idToken(t, "another-client", now.Add(time.Hour)))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = c.DecodeIDToken(idToken(t, "client-123", now.Add(-time.Hour)))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = c.DecodeIDToken("not-a-jwt")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
