package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Approval Request Operations ────────────────────────────────────────────

// InsertApprovalRequest creates a pending approval request.
func (s queries) InsertApprovalRequest(ctx context.Context, r domain.ApprovalRequest) error {
	var amount any
	if r.Action == domain.ActionSpend {
		amount = int64(r.Amount)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO approval_requests (id, operator, requester, action, amount, bounty_id,
			delegate, status, expires_at, resolution_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, string(r.Operator), string(r.Requester), string(r.Action), amount, r.BountyID,
		string(r.Delegate), string(r.Status), encodeTime(r.ExpiresAt), r.ResolutionReason, encodeTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

// GetApprovalRequest fetches one request.
func (s queries) GetApprovalRequest(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	var (
		r          domain.ApprovalRequest
		amount     sql.NullInt64
		expiresStr string
		createdStr string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, operator, requester, action, amount, bounty_id, delegate, status,
			expires_at, resolution_reason, created_at
		FROM approval_requests WHERE id = ?
	`, id).Scan(&r.ID, (*string)(&r.Operator), (*string)(&r.Requester), (*string)(&r.Action),
		&amount, &r.BountyID, (*string)(&r.Delegate), (*string)(&r.Status), &expiresStr, &r.ResolutionReason, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: approval request %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return r, fmt.Errorf("get approval request: %w", err)
	}
	if amount.Valid {
		r.Amount = domain.Amount(amount.Int64)
	}
	if r.ExpiresAt, err = decodeTime(expiresStr); err != nil {
		return r, fmt.Errorf("get approval request: %w", err)
	}
	if r.CreatedAt, err = decodeTime(createdStr); err != nil {
		return r, fmt.Errorf("get approval request: %w", err)
	}
	return r, nil
}

// ResolveApprovalRequest moves a request out of PENDING. Guarded against
// double resolution.
func (s queries) ResolveApprovalRequest(ctx context.Context, id string, to domain.ApprovalStatus, reason string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE approval_requests SET status = ?, resolution_reason = ?
		WHERE id = ? AND status = 'PENDING'
	`, string(to), reason, id)
	if err != nil {
		return fmt.Errorf("resolve approval request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve approval request: %w", err)
	}
	if n == 0 {
		current, getErr := s.GetApprovalRequest(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: approval request %s is already %s", domain.ErrInvalidState, id, current.Status)
	}
	return nil
}

// ListApprovalRequests returns an operator's requests with the given cached
// status, oldest first. Callers still derive expiry from expires_at.
func (s queries) ListApprovalRequests(ctx context.Context, operator domain.Identity, status domain.ApprovalStatus, limit int) ([]domain.ApprovalRequest, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM approval_requests
		WHERE operator = ? AND status = ?
		ORDER BY rowid LIMIT ?
	`, string(operator), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan approval id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reqs := make([]domain.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetApprovalRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}
