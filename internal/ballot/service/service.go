package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"evoto/internal/ballot/metrics"
	"evoto/internal/ballot/models"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Notifier

// Store is the append-only ballot ledger.
type Store interface {
	// ListBySubject must be a strongly consistent read.
	ListBySubject(ctx context.Context, subject string) ([]*models.Record, error)
	// InsertAll writes every record or none. It returns sentinel.ErrConflict when
	// any (subject, unit) pair already exists.
	InsertAll(ctx context.Context, records []*models.Record) error
}

// Notifier is told about committed votes. Failures never undo the vote.
type Notifier interface {
	VoteRecorded(ctx context.Context, voter models.Voter, units []models.Unit, decision string, at time.Time) error
}

// Ledger computes outstanding units and commits votes for them.
// All duplicate protection comes from Store.InsertAll.
type Ledger struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PendingUnits partitions units into those subject has not voted for yet and
// those already recorded. Both slices are sorted by type, then number.
func (l *Ledger) PendingUnits(ctx context.Context, subject string, units []models.Unit) (pending, voted []models.Unit, err error) {
	if subject == "" {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "subject is required")
	}
	records, err := l.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodePersistence, "could not read recorded votes")
	}
	recorded := make(map[models.Unit]struct{}, len(records))
	for _, r := range records {
		recorded[r.Unit] = struct{}{}
	}

	pending = make([]models.Unit, 0, len(units))
	voted = make([]models.Unit, 0, len(records))
	for _, u := range units {
		if _, ok := recorded[u]; ok {
			voted = append(voted, u)
			continue
		}
		pending = append(pending, u)
	}
	models.SortUnits(pending)
	models.SortUnits(voted)
	return pending, voted, nil
}

// CommitVote writes one record per pending unit in a single conditional
// transaction. A rejected condition means the vote is already recorded and is
// reported as OutcomeAlreadyVoted, not as an error.
func (l *Ledger) CommitVote(ctx context.Context, req models.VoteRequest) (models.CommitOutcome, error) {
	outcome, _, err := l.commit(ctx, req)
	return outcome, err
}

func (l *Ledger) commit(ctx context.Context, req models.VoteRequest) (models.CommitOutcome, time.Time, error) {
	decision := strings.TrimSpace(req.Decision)
	if decision == "" {
		return "", time.Time{}, dErrors.New(dErrors.CodeValidation, "decision is required")
	}
	if len(decision) > models.MaxDecisionLength {
		return "", time.Time{}, dErrors.New(dErrors.CodeValidation, "decision is too long")
	}
	if req.Voter.Subject == "" {
		return "", time.Time{}, dErrors.New(dErrors.CodeUnauthorized, "subject is required")
	}
	if len(req.Pending) == 0 {
		l.metrics.ObserveCommit(string(models.OutcomeAlreadyVoted), 0, 0)
		return models.OutcomeAlreadyVoted, time.Time{}, nil
	}

	submittedAt := l.now().UTC()
	records := make([]*models.Record, 0, len(req.Pending))
	for _, u := range req.Pending {
		records = append(records, &models.Record{
			Subject:      req.Voter.Subject,
			Unit:         u,
			Community:    req.Voter.Community,
			Name:         req.Voter.Name,
			RUT:          req.Voter.RUT,
			Email:        req.Voter.Email,
			Decision:     decision,
			SubmittedAt:  submittedAt,
			LoginAt:      req.Voter.LoginAt,
			Verification: req.Verification,
			Client:       req.Client,
		})
	}

	start := time.Now()
	err := l.store.InsertAll(ctx, records)
	elapsed := time.Since(start)
	switch {
	case err == nil:
		l.metrics.ObserveCommit(string(models.OutcomeCommitted), len(records), elapsed)
		l.logger.InfoContext(ctx, "vote committed",
			"subject", req.Voter.Subject,
			"units", len(records),
			"rut_match", req.Verification.Match,
		)
		return models.OutcomeCommitted, submittedAt, nil
	case errors.Is(err, sentinel.ErrConflict):
		l.metrics.ObserveCommit(string(models.OutcomeAlreadyVoted), len(records), elapsed)
		l.logger.InfoContext(ctx, "vote already recorded", "subject", req.Voter.Subject)
		return models.OutcomeAlreadyVoted, time.Time{}, nil
	default:
		l.metrics.ObserveCommit("error", len(records), elapsed)
		l.logger.ErrorContext(ctx, "vote commit failed", "subject", req.Voter.Subject, "error", err)
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodePersistence, "could not record your vote, please try again")
	}
}

// Cast derives the pending units, commits them and sends a confirmation when
// something new was recorded.
func (l *Ledger) Cast(ctx context.Context, req models.CastRequest) (models.CastResult, error) {
	pending, _, err := l.PendingUnits(ctx, req.Voter.Subject, req.Units)
	if err != nil {
		return models.CastResult{}, err
	}
	outcome, submittedAt, err := l.commit(ctx, models.VoteRequest{
		Voter:        req.Voter,
		Pending:      pending,
		Decision:     req.Decision,
		Verification: req.Verification,
		Client:       req.Client,
	})
	if err != nil {
		return models.CastResult{}, err
	}
	if outcome != models.OutcomeCommitted {
		return models.CastResult{Outcome: outcome}, nil
	}

	l.notify(ctx, req.Voter, pending, strings.TrimSpace(req.Decision), submittedAt)
	return models.CastResult{Outcome: outcome, Units: pending, SubmittedAt: submittedAt}, nil
}

func (l *Ledger) notify(ctx context.Context, voter models.Voter, units []models.Unit, decision string, at time.Time) {
	if l.notifier == nil || voter.Email == "" {
		return
	}
	if err := l.notifier.VoteRecorded(ctx, voter, units, decision, at); err != nil {
		l.metrics.IncrementNotifyFailure()
		l.logger.WarnContext(ctx, "vote confirmation not sent", "subject", voter.Subject, "error", err)
	}
}
