// Package oidc implements the authorization-code flow against the hosted
// identity provider.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"evoto/internal/identity/models"
	"evoto/internal/platform/config"
	dErrors "evoto/pkg/domain-errors"
)

// TokenResponse is the token endpoint payload.
type TokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// idTokenClaims maps the provider's custom attributes next to the registered claims.
type idTokenClaims struct {
	Name         string `json:"custom:Nombre"`
	RUT          string `json:"custom:Rut"`
	Community    string `json:"custom:Comunidad"`
	UnitList     string `json:"custom:Unidad"`
	UnitTypeList string `json:"custom:TipoUnidad"`
	Email        string `json:"email"`
	jwt.RegisteredClaims
}

// Client talks to the provider's hosted login, token and logout endpoints.
type Client struct {
	cfg        config.AuthConfig
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func New(cfg config.AuthConfig, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthCodeURL is the hosted login page the browser is redirected to.
func (c *Client) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("redirect_uri", c.cfg.RedirectURL)
	if state != "" {
		q.Set("state", state)
	}
	return c.cfg.Domain + "/login?" + q.Encode()
}

// LogoutURL ends the provider session and returns the browser to the app root,
// which is the redirect URL without its /callback suffix.
func (c *Client) LogoutURL() string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("logout_uri", strings.TrimSuffix(c.cfg.RedirectURL, "/callback"))
	return c.cfg.Domain + "/logout?" + q.Encode()
}

// Exchange trades an authorization code for the voter's claims.
func (c *Client) Exchange(ctx context.Context, code string) (models.Claims, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Domain+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return models.Claims{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Claims{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Claims{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider response unreadable")
	}
	if resp.StatusCode != http.StatusOK {
		return models.Claims{}, dErrors.Wrap(
			fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			dErrors.CodeUnauthorized, "login failed")
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return models.Claims{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "login failed")
	}
	if tokens.IDToken == "" {
		return models.Claims{}, dErrors.New(dErrors.CodeUnauthorized, "login failed")
	}
	return c.DecodeIDToken(tokens.IDToken)
}

// DecodeIDToken reads the claims of an ID token obtained directly from the
// token endpoint over TLS. The signature is not checked; audience and expiry are.
func (c *Client) DecodeIDToken(raw string) (models.Claims, error) {
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return models.Claims{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid id token")
	}

	validator := jwt.NewValidator(
		jwt.WithAudience(c.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(30*time.Second),
	)
	if err := validator.Validate(claims); err != nil {
		return models.Claims{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid id token")
	}
	if claims.Subject == "" {
		return models.Claims{}, dErrors.New(dErrors.CodeUnauthorized, "id token has no subject")
	}

	return models.Claims{
		Subject:      claims.Subject,
		Name:         claims.Name,
		RUT:          claims.RUT,
		Community:    claims.Community,
		UnitList:     claims.UnitList,
		UnitTypeList: claims.UnitTypeList,
		Email:        claims.Email,
	}, nil
}
