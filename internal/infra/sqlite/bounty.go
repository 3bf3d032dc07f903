package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Bounty Operations ──────────────────────────────────────────────────────

// InsertBounty creates a bounty row.
func (s queries) InsertBounty(ctx context.Context, b domain.Bounty) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bounties (id, poster, title, description, reward, closure_type, status,
			harness_hash, reviewer_count, min_reviewer_rep, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, string(b.Poster), b.Title, b.Description, int64(b.Reward), string(b.ClosureType), string(b.Status),
		b.Closure.HarnessHash, b.Closure.ReviewerCount, int64(b.Closure.MinReviewerRep),
		encodeTimePtr(b.Deadline), encodeTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert bounty: %w", err)
	}
	return nil
}

// GetBounty fetches one bounty.
func (s queries) GetBounty(ctx context.Context, id string) (domain.Bounty, error) {
	var (
		b           domain.Bounty
		reward, rep int64
		deadlineStr sql.NullString
		createdStr  string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, poster, title, description, reward, closure_type, status,
			harness_hash, reviewer_count, min_reviewer_rep, deadline, created_at
		FROM bounties WHERE id = ?
	`, id).Scan(&b.ID, (*string)(&b.Poster), &b.Title, &b.Description, &reward, (*string)(&b.ClosureType),
		(*string)(&b.Status), &b.Closure.HarnessHash, &b.Closure.ReviewerCount, &rep, &deadlineStr, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("%w: bounty %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return b, fmt.Errorf("get bounty: %w", err)
	}
	b.Reward = domain.Amount(reward)
	b.Closure.MinReviewerRep = domain.Amount(rep)
	if b.Deadline, err = decodeTimePtr(deadlineStr); err != nil {
		return b, fmt.Errorf("get bounty: %w", err)
	}
	if b.CreatedAt, err = decodeTime(createdStr); err != nil {
		return b, fmt.Errorf("get bounty: %w", err)
	}
	return b, nil
}

// TransitionBounty moves a bounty from one of the allowed statuses to the
// target status. Zero rows affected on an existing bounty is an illegal
// transition.
func (s queries) TransitionBounty(ctx context.Context, id string, from []domain.BountyStatus, to domain.BountyStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: empty transition source set", domain.ErrInternal)
	}
	query := `UPDATE bounties SET status = ? WHERE id = ? AND status IN (?`
	args := []any{string(to), id, string(from[0])}
	for _, st := range from[1:] {
		query += `, ?`
		args = append(args, string(st))
	}
	query += `)`

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition bounty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition bounty: %w", err)
	}
	if n == 0 {
		current, getErr := s.GetBounty(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: bounty %s is %s, cannot move to %s", domain.ErrInvalidState, id, current.Status, to)
	}
	return nil
}

// ListBounties returns bounties, optionally filtered by status, newest first.
func (s queries) ListBounties(ctx context.Context, status domain.BountyStatus, limit int) ([]domain.Bounty, error) {
	query := `
		SELECT id, poster, title, description, reward, closure_type, status,
			harness_hash, reviewer_count, min_reviewer_rep, deadline, created_at
		FROM bounties`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bounties: %w", err)
	}
	defer rows.Close()

	var bounties []domain.Bounty
	for rows.Next() {
		var (
			b           domain.Bounty
			reward, rep int64
			deadlineStr sql.NullString
			createdStr  string
		)
		if err := rows.Scan(&b.ID, (*string)(&b.Poster), &b.Title, &b.Description, &reward, (*string)(&b.ClosureType),
			(*string)(&b.Status), &b.Closure.HarnessHash, &b.Closure.ReviewerCount, &rep, &deadlineStr, &createdStr); err != nil {
			return nil, fmt.Errorf("scan bounty: %w", err)
		}
		b.Reward = domain.Amount(reward)
		b.Closure.MinReviewerRep = domain.Amount(rep)
		if b.Deadline, err = decodeTimePtr(deadlineStr); err != nil {
			return nil, fmt.Errorf("scan bounty: %w", err)
		}
		if b.CreatedAt, err = decodeTime(createdStr); err != nil {
			return nil, fmt.Errorf("scan bounty: %w", err)
		}
		bounties = append(bounties, b)
	}
	return bounties, rows.Err()
}

// ─── Submission Operations ──────────────────────────────────────────────────

// InsertSubmission creates a submission row. The envelope and receipt are
// stored as JSON documents; they are validated variants at the boundary and
// never interpreted by the store.
func (s queries) InsertSubmission(ctx context.Context, sub domain.BountySubmission) error {
	envelope, err := json.Marshal(sub.Envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	var receipt any
	if sub.Receipt != nil {
		data, err := json.Marshal(sub.Receipt)
		if err != nil {
			return fmt.Errorf("encode receipt: %w", err)
		}
		receipt = string(data)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO submissions (id, bounty_id, submitter, artifact_hash, envelope_json,
			receipt_json, status, artifact_id, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.BountyID, string(sub.Submitter), sub.ArtifactHash, string(envelope),
		receipt, string(sub.Status), sub.ArtifactID, encodeTime(sub.CreatedAt), encodeTimePtr(sub.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetSubmission fetches one submission.
func (s queries) GetSubmission(ctx context.Context, id string) (domain.BountySubmission, error) {
	var (
		sub          domain.BountySubmission
		envelopeJSON string
		receiptJSON  sql.NullString
		createdStr   string
		resolvedStr  sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, bounty_id, submitter, artifact_hash, envelope_json, receipt_json,
			status, artifact_id, created_at, resolved_at
		FROM submissions WHERE id = ?
	`, id).Scan(&sub.ID, &sub.BountyID, (*string)(&sub.Submitter), &sub.ArtifactHash, &envelopeJSON,
		&receiptJSON, (*string)(&sub.Status), &sub.ArtifactID, &createdStr, &resolvedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("%w: submission %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return sub, fmt.Errorf("get submission: %w", err)
	}
	if err := json.Unmarshal([]byte(envelopeJSON), &sub.Envelope); err != nil {
		return sub, fmt.Errorf("decode envelope: %w", err)
	}
	if receiptJSON.Valid {
		var r domain.ExecutionReceipt
		if err := json.Unmarshal([]byte(receiptJSON.String), &r); err != nil {
			return sub, fmt.Errorf("decode receipt: %w", err)
		}
		sub.Receipt = &r
	}
	if sub.CreatedAt, err = decodeTime(createdStr); err != nil {
		return sub, fmt.Errorf("get submission: %w", err)
	}
	if sub.ResolvedAt, err = decodeTimePtr(resolvedStr); err != nil {
		return sub, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ResolveSubmission moves a submission out of PENDING. Guarded: resolving
// an already-resolved submission is InvalidState, so a retry creates no
// duplicate effect.
func (s queries) ResolveSubmission(ctx context.Context, id string, to domain.SubmissionStatus, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE submissions SET status = ?, resolved_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, string(to), encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("resolve submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve submission: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetSubmission(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: submission %s already resolved", domain.ErrInvalidState, id)
	}
	return nil
}

// OverturnSubmission flips an approved submission to rejected as part of a
// dispute ruling.
func (s queries) OverturnSubmission(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE submissions SET status = 'REJECTED', resolved_at = ?
		WHERE id = ? AND status = 'APPROVED'
	`, encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("overturn submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("overturn submission: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: submission %s is not approved", domain.ErrInvalidState, id)
	}
	return nil
}

// ListSubmissionsByBounty returns a bounty's submissions, oldest first.
func (s queries) ListSubmissionsByBounty(ctx context.Context, bountyID string) ([]domain.BountySubmission, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM submissions WHERE bounty_id = ? ORDER BY rowid
	`, bountyID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan submission id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subs := make([]domain.BountySubmission, 0, len(ids))
	for _, id := range ids {
		sub, err := s.GetSubmission(ctx, id)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
