package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"evoto/internal/verification/metrics"
	"evoto/internal/verification/models"
	"evoto/pkg/domain/rut"
)

const tracerName = "evoto/verification"

// Orchestrator runs normalize → extract → locate over each rotation variant and
// decides whether the document matches the claimed identifier.
type Orchestrator struct {
	normalizer Normalizer
	extractor  TextExtractor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(normalizer Normalizer, extractor TextExtractor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		normalizer: normalizer,
		extractor:  extractor,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Verify reads a national ID from image and compares it with claimedRUT.
//
// The first variant that yields an identifier stops the search, whether or not it
// matches. When no variant yields one the status is not_found. ErrImageDecode and
// ErrOCREngineUnavailable are returned as errors; any other extraction failure
// only skips the variant.
func (o *Orchestrator) Verify(ctx context.Context, image []byte, claimedRUT string) (models.Result, error) {
	ctx, span := o.tracer.Start(ctx, "verification.verify")
	defer span.End()
	start := o.now()

	variants, err := o.normalizer.Variants(ctx, image)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrImageDecode):
			o.metrics.IncrementOutcome("invalid_image")
			span.SetStatus(codes.Error, "image decode")
			return models.Result{}, err
		case ctx.Err() != nil:
			return models.Result{}, ctx.Err()
		}
		o.logger.WarnContext(ctx, "document normalization failed, no identifier read", "error", err)
		return o.finish(ctx, span, models.Result{Status: models.StatusNotFound}, start), nil
	}
	if len(variants) > models.MaxRotations {
		variants = variants[:models.MaxRotations]
	}

	tried := 0
	for _, variant := range variants {
		if err := ctx.Err(); err != nil {
			return models.Result{}, err
		}
		tried++

		text, err := o.extract(ctx, variant)
		if err != nil {
			if outcome, fatal := fatalOutcome(err); fatal {
				o.metrics.IncrementOutcome(outcome)
				span.RecordError(err)
				span.SetStatus(codes.Error, outcome)
				return models.Result{}, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.Result{}, ctxErr
			}
			o.metrics.IncrementSkipped()
			o.logger.WarnContext(ctx, "text extraction failed, trying next rotation",
				"rotation", variant.Rotation,
				"error", err,
			)
			continue
		}

		id, ok := rut.Locate(text)
		if !ok {
			continue
		}
		status := models.StatusMismatched
		if rut.Equal(id, claimedRUT) {
			status = models.StatusMatched
		}
		span.SetAttributes(attribute.Int("verification.rotation", variant.Rotation))
		return o.finish(ctx, span, models.Result{Status: status, DetectedRUT: id, Rotations: tried}, start), nil
	}

	return o.finish(ctx, span, models.Result{Status: models.StatusNotFound, Rotations: tried}, start), nil
}

// extract converts an extractor panic into an ordinary error so one bad variant
// cannot take the request down.
func (o *Orchestrator) extract(ctx context.Context, variant models.Variant) (text string, err error) {
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic on %d° variant: %v", variant.Rotation, r)
		}
		o.metrics.ObserveExtract(o.now().Sub(start))
	}()
	return o.extractor.Extract(ctx, variant.Image)
}

func fatalOutcome(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrOCREngineUnavailable):
		return "engine_unavailable", true
	case errors.Is(err, models.ErrImageDecode):
		return "invalid_image", true
	}
	return "", false
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, result models.Result, start time.Time) models.Result {
	now := o.now()
	result.Elapsed = now.Sub(start)
	result.VerifiedAt = now
	span.SetAttributes(
		attribute.String("verification.status", string(result.Status)),
		attribute.Int("verification.rotations", result.Rotations),
	)
	o.metrics.ObserveVerify(string(result.Status), result.Rotations, result.Elapsed)
	o.logger.InfoContext(ctx, "document verified",
		"status", result.Status,
		"rotations", result.Rotations,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	return result
}
