package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"evoto/internal/ballot/models"
	"evoto/pkg/platform/sentinel"
	"evoto/pkg/platform/tx"
)

// uniqueViolation is the SQLSTATE postgres reports for a duplicate key.
const uniqueViolation = pq.ErrorCode("23505")

const insertBallotSQL = `
	INSERT INTO ballots (
		subject, unit_type, unit_number, community, voter_name, rut, email,
		decision, submitted_at, login_at,
		verification_status, rut_match, detected_rut, front_image_key, back_image_key,
		verification_attempts, rotations, detection_ms,
		client_ip, user_agent, browser, os, request_id, cropped_key
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10,
		$11, $12, $13, $14, $15,
		$16, $17, $18,
		$19, $20, $21, $22, $23, $24
	)`

const listBallotsSQL = `
	SELECT subject, unit_type, unit_number, community, voter_name, rut, email,
		decision, submitted_at, login_at,
		verification_status, rut_match, detected_rut, front_image_key, back_image_key,
		verification_attempts, rotations, detection_ms,
		client_ip, user_agent, browser, os, request_id, cropped_key
	FROM ballots
	WHERE subject = $1
	ORDER BY unit_type, unit_number`

// PostgresStore persists ballots in PostgreSQL. The primary key
// (subject, unit_type, unit_number) is the duplicate-vote guard.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListBySubject reads from the primary, so it observes every committed vote.
func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]*models.Record, error) {
	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx, listBallotsSQL, subject)
	if err != nil {
		return nil, fmt.Errorf("list ballots: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var (
			r           models.Record
			loginAt     sql.NullTime
			detectionMs int64
		)
		if err := rows.Scan(
			&r.Subject, &r.Unit.Type, &r.Unit.Number, &r.Community, &r.Name, &r.RUT, &r.Email,
			&r.Decision, &r.SubmittedAt, &loginAt,
			&r.Verification.Status, &r.Verification.Match, &r.Verification.DetectedRUT,
			&r.Verification.FrontImageKey, &r.Verification.BackImageKey,
			&r.Verification.Attempts, &r.Verification.Rotations, &detectionMs,
			&r.Client.IP, &r.Client.UserAgent, &r.Client.Browser, &r.Client.OS, &r.Client.RequestID,
			&r.Verification.CroppedKey,
		); err != nil {
			return nil, fmt.Errorf("scan ballot: %w", err)
		}
		if loginAt.Valid {
			r.LoginAt = loginAt.Time
		}
		r.Verification.DetectionTime = time.Duration(detectionMs) * time.Millisecond
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ballots: %w", err)
	}
	return records, nil
}

// InsertAll writes every record in one transaction. Any duplicate key rolls the
// whole batch back and returns sentinel.ErrConflict.
func (s *PostgresStore) InsertAll(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	err := tx.Run(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		stmt, err := q.PrepareContext(ctx, insertBallotSQL)
		if err != nil {
			return fmt.Errorf("prepare ballot insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			var loginAt sql.NullTime
			if !r.LoginAt.IsZero() {
				loginAt = sql.NullTime{Time: r.LoginAt, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				r.Subject, r.Unit.Type, r.Unit.Number, r.Community, r.Name, r.RUT, r.Email,
				r.Decision, r.SubmittedAt, loginAt,
				r.Verification.Status, r.Verification.Match, r.Verification.DetectedRUT,
				r.Verification.FrontImageKey, r.Verification.BackImageKey,
				r.Verification.Attempts, r.Verification.Rotations, r.Verification.DetectionTime.Milliseconds(),
				r.Client.IP, r.Client.UserAgent, r.Client.Browser, r.Client.OS, r.Client.RequestID,
				r.Verification.CroppedKey,
			); err != nil {
				return fmt.Errorf("insert ballot %s: %w", r.Unit, err)
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
