package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	ballothandler "evoto/internal/ballot/handler"
	ballotservice "evoto/internal/ballot/service"
	identityhandler "evoto/internal/identity/handler"
	"evoto/internal/identity/session"
	"evoto/internal/platform/config"
	"evoto/internal/ratelimit"
	verificationhandler "evoto/internal/verification/handler"
	verificationservice "evoto/internal/verification/service"
	"evoto/pkg/platform/httputil"
	"evoto/pkg/platform/middleware/admin"
	"evoto/pkg/platform/middleware/auth"
	"evoto/pkg/platform/middleware/device"
	"evoto/pkg/platform/middleware/metadata"
	"evoto/pkg/platform/middleware/request"
	"evoto/pkg/platform/middleware/requesttime"
)

const readinessTimeout = 2 * time.Second

type routes struct {
	cfg            config.Config
	log            *slog.Logger
	authenticator  identityhandler.Authenticator
	sessions       *session.Manager
	verification   *verificationservice.Service
	ledger         *ballotservice.Ledger
	limiter        *ratelimit.Middleware
	latency        request.LatencyObserver
	metricsHandler http.Handler
	// readiness names each backing service and how to ping it.
	readiness map[string]func(context.Context) error
}

// newRouter mounts the public login flow, the operational endpoints and the
// session-protected voting API.
func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(rt.log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(request.Logger(rt.log))
	r.Use(request.Latency(rt.latency))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(rt.readiness, rt.log))
	if token := rt.cfg.Server.AdminToken; token != "" {
		r.With(admin.RequireAdminToken(token, rt.log)).Handle("/metrics", rt.metricsHandler)
	} else {
		r.Handle("/metrics", rt.metricsHandler)
	}

	identityhandler.New(rt.authenticator, rt.sessions, rt.verification, rt.log, identityhandler.Settings{
		CookieSecure: rt.cfg.Auth.CookieSecure,
		PostLoginURL: rt.cfg.Auth.PostLoginURL,
	}).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(rt.sessions, rt.log))
		r.Group(func(r chi.Router) {
			r.Use(rt.limiter.Limit("verify"))
			verificationhandler.New(rt.verification, rt.log, rt.cfg.Server.MaxUploadBytes).Register(r)
		})
		ballothandler.New(rt.ledger, rt.verification, rt.log).Register(r)
	})
	return r
}

// readyHandler pings every dependency concurrently and answers 503 when any fails.
func readyHandler(checks map[string]func(context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			status = map[string]string{}
			ready  = true
		)
		g, gctx := errgroup.WithContext(ctx)
		for name, check := range checks {
			g.Go(func() error {
				err := check(gctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					ready = false
					status[name] = "unavailable"
					log.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
					return nil
				}
				status[name] = "ok"
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	}
}
