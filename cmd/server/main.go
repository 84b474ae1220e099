package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	ballotmetrics "evoto/internal/ballot/metrics"
	ballotservice "evoto/internal/ballot/service"
	ballotstore "evoto/internal/ballot/store"
	"evoto/internal/identity/oidc"
	"evoto/internal/identity/session"
	"evoto/internal/objectstore"
	"evoto/internal/platform/config"
	"evoto/internal/platform/httpserver"
	"evoto/internal/platform/logger"
	"evoto/internal/platform/metrics"
	"evoto/internal/platform/postgres"
	"evoto/internal/platform/redis"
	"evoto/internal/ratelimit"
	"evoto/internal/verification/imaging"
	verificationmetrics "evoto/internal/verification/metrics"
	"evoto/internal/verification/ocr"
	verificationservice "evoto/internal/verification/service"
	verificationstore "evoto/internal/verification/store"
)

const sessionIssuer = "evoto"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("refusing to start", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	imaging.Initialize()
	defer imaging.Terminate()

	engine := ocr.NewTesseractEngine(cfg.Verification.TesseractPath, cfg.Verification.Language, cfg.Verification.PageSegMode)
	if err := engine.Available(); err != nil {
		if cfg.IsProduction() {
			return fmt.Errorf("ocr engine: %w", err)
		}
		log.Warn("ocr engine not available, document checks will fail", "error", err)
	}

	readiness := map[string]func(context.Context) error{}
	sessionStore, limitStore, closeRedis, err := openRedisStores(ctx, cfg, log, readiness)
	if err != nil {
		return err
	}
	defer closeRedis()

	ledgerStore, db, err := openLedgerStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		readiness["postgres"] = db.PingContext
	}

	objects, err := objectstore.NewFilesystem(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	outbox, closeKafka, err := openMailSender(gctx, g, cfg, log)
	if err != nil {
		return err
	}
	defer closeKafka()

	orchestrator := verificationservice.NewOrchestrator(
		imaging.NewNormalizer(
			imaging.WithTargetHeight(cfg.Verification.TargetHeight),
			imaging.WithRotations(cfg.Verification.Rotations),
			imaging.WithWorkDir(cfg.Verification.WorkDir),
		),
		ocr.NewExtractor(imaging.NewPreprocessor(cfg.Verification.WorkDir), engine),
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(verificationmetrics.New()),
	)
	verification := verificationservice.NewService(orchestrator, objects, sessionStore,
		verificationservice.WithCropper(imaging.NewCropper(cfg.Verification.WorkDir)),
		verificationservice.WithSessionTTL(cfg.Verification.SessionTTL),
		verificationservice.WithVerifyTimeout(cfg.Verification.Timeout),
		verificationservice.WithServiceLogger(log),
	)
	ledger := ballotservice.New(ledgerStore,
		ballotservice.WithLogger(log),
		ballotservice.WithMetrics(ballotmetrics.New()),
		ballotservice.WithNotifier(newConfirmer(cfg, outbox)),
	)
	limiter := ratelimit.NewMiddleware(limitStore, cfg.Verification.RateLimit, cfg.Verification.RateWindow, log)
	sessions := session.NewManager(cfg.Auth.SessionSigningKey, sessionIssuer, cfg.Auth.SessionTTL)

	router := newRouter(routes{
		cfg:            cfg,
		log:            log,
		authenticator:  oidc.New(cfg.Auth),
		sessions:       sessions,
		verification:   verification,
		ledger:         ledger,
		limiter:        limiter,
		latency:        metrics.New(),
		metricsHandler: promhttp.Handler(),
		readiness:      readiness,
	})

	srv := httpserver.New(cfg.Server, router)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openRedisStores returns the verification session cache and the rate limit
// store. Both prefer Redis; development falls back to process memory.
func openRedisStores(ctx context.Context, cfg config.Config, log *slog.Logger, readiness map[string]func(context.Context) error) (verificationservice.SessionStore, ratelimit.Store, func(), error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, verification sessions and rate limits are kept in memory")
		return verificationstore.NewInMemory(), ratelimit.NewInMemory(), func() {}, nil
	}
	readiness["redis"] = client.Health
	return verificationstore.NewRedis(client), ratelimit.NewRedis(client), func() { _ = client.Close() }, nil
}

// openLedgerStore prefers Postgres; development falls back to process memory.
func openLedgerStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ballotservice.Store, *sql.DB, error) {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		log.Warn("DATABASE_URL not set, ballots are kept in memory and lost on restart")
		return ballotstore.NewInMemory(), nil, nil
	}
	return ballotstore.NewPostgres(db), db, nil
}
