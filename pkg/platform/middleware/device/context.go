// Package device parses the caller's User-Agent once per request and exposes
// a browser and OS summary to handlers.
package device

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// Info summarizes the client software.
type Info struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// DisplayName renders Info as "<browser> on <os>".
func (i Info) DisplayName() string {
	if i.Browser == "" && i.OS == "" {
		return "Unknown Device"
	}
	browser, os := i.Browser, i.OS
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// Parse extracts browser and OS from a User-Agent header.
func Parse(userAgent string) Info {
	if strings.TrimSpace(userAgent) == "" {
		return Info{}
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name)
	if major, _, _ := strings.Cut(version, "."); major != "" && browser != "" {
		browser += " " + major
	}
	os := strings.TrimSpace(ua.OS())
	if os == "" {
		os = strings.TrimSpace(ua.Platform())
	}
	return Info{Browser: browser, OS: os, Mobile: ua.Mobile(), Bot: ua.Bot()}
}

type contextKeyDevice struct{}

// FromContext returns the Info attached by Middleware, or the zero Info.
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(contextKeyDevice{}).(Info); ok {
		return info
	}
	return Info{}
}

// WithInfo injects Info into a context.
// Useful for handler tests that don't run the full HTTP middleware chain.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, info)
}

// Middleware parses the User-Agent header into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithInfo(r.Context(), Parse(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
