package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Dispute Operations ─────────────────────────────────────────────────────

// InsertDispute creates a pending dispute. The partial unique index on
// pending disputes rejects a second live challenge for the same submission.
func (s queries) InsertDispute(ctx context.Context, d domain.Dispute) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO disputes (id, bounty_id, submission_id, initiator, reason, stake_amount,
			stake_escrow_id, status, resolver, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.BountyID, d.SubmissionID, string(d.Initiator), d.Reason, int64(d.StakeAmount),
		d.StakeEscrowID, string(d.Status), string(d.Resolver), encodeTime(d.Deadline), encodeTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

// GetDispute fetches one dispute.
func (s queries) GetDispute(ctx context.Context, id string) (domain.Dispute, error) {
	var (
		d           domain.Dispute
		stake       int64
		outcomeStr  sql.NullString
		deadlineStr string
		createdStr  string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, bounty_id, submission_id, initiator, reason, stake_amount,
			stake_escrow_id, status, outcome, resolver, deadline, created_at
		FROM disputes WHERE id = ?
	`, id).Scan(&d.ID, &d.BountyID, &d.SubmissionID, (*string)(&d.Initiator), &d.Reason, &stake,
		&d.StakeEscrowID, (*string)(&d.Status), &outcomeStr, (*string)(&d.Resolver), &deadlineStr, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("%w: dispute %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return d, fmt.Errorf("get dispute: %w", err)
	}
	d.StakeAmount = domain.Amount(stake)
	if outcomeStr.Valid {
		outcome := domain.DisputeOutcome(outcomeStr.String)
		d.Outcome = &outcome
	}
	if d.Deadline, err = decodeTime(deadlineStr); err != nil {
		return d, fmt.Errorf("get dispute: %w", err)
	}
	if d.CreatedAt, err = decodeTime(createdStr); err != nil {
		return d, fmt.Errorf("get dispute: %w", err)
	}
	return d, nil
}

// RecordDisputeRuling moves a pending dispute to RESOLVED with the ruling.
// Guarded: a second resolve finds zero rows and reports InvalidState.
func (s queries) RecordDisputeRuling(ctx context.Context, id string, outcome domain.DisputeOutcome, resolver domain.Identity) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE disputes SET status = 'RESOLVED', outcome = ?, resolver = ?
		WHERE id = ? AND status = 'PENDING'
	`, string(outcome), string(resolver), id)
	if err != nil {
		return fmt.Errorf("record dispute ruling: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record dispute ruling: %w", err)
	}
	if n == 0 {
		current, getErr := s.GetDispute(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: dispute %s is already %s", domain.ErrInvalidState, id, current.Status)
	}
	return nil
}

// ExpireDispute persists a lazily observed deadline pass on a pending
// dispute.
func (s queries) ExpireDispute(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE disputes SET status = 'EXPIRED' WHERE id = ? AND status = 'PENDING'
	`, id)
	if err != nil {
		return fmt.Errorf("expire dispute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("expire dispute: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: dispute %s is not pending", domain.ErrInvalidState, id)
	}
	return nil
}
