package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Escrow Hold Operations ─────────────────────────────────────────────────

// InsertEscrowHold creates a hold row in HELD status.
func (s queries) InsertEscrowHold(ctx context.Context, h domain.EscrowHold) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO escrow_holds (id, bounty_id, holder, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, h.ID, h.BountyID, string(h.Holder), int64(h.Amount), string(h.Status), encodeTime(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert escrow hold: %w", err)
	}
	return nil
}

// GetEscrowHold fetches one hold.
func (s queries) GetEscrowHold(ctx context.Context, id string) (domain.EscrowHold, error) {
	var (
		h           domain.EscrowHold
		amount      int64
		createdStr  string
		releasedStr sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, bounty_id, holder, amount, status, created_at, released_at
		FROM escrow_holds WHERE id = ?
	`, id).Scan(&h.ID, &h.BountyID, (*string)(&h.Holder), &amount, (*string)(&h.Status), &createdStr, &releasedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return h, fmt.Errorf("%w: escrow hold %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return h, fmt.Errorf("get escrow hold: %w", err)
	}
	h.Amount = domain.Amount(amount)
	if h.CreatedAt, err = decodeTime(createdStr); err != nil {
		return h, fmt.Errorf("get escrow hold: %w", err)
	}
	if h.ReleasedAt, err = decodeTimePtr(releasedStr); err != nil {
		return h, fmt.Errorf("get escrow hold: %w", err)
	}
	return h, nil
}

// CloseEscrowHold transitions a hold from HELD to the given terminal status.
// The transition is a guarded UPDATE: zero rows affected on an existing hold
// means it already reached a terminal status, which is InvalidState — never
// a silent no-op.
func (s queries) CloseEscrowHold(ctx context.Context, id string, to domain.HoldStatus, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE escrow_holds SET status = ?, released_at = ?
		WHERE id = ? AND status = 'HELD'
	`, string(to), encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("close escrow hold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close escrow hold: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetEscrowHold(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: escrow hold %s is not held", domain.ErrInvalidState, id)
	}
	return nil
}

// ListHeldByBounty returns the bounty's outstanding (HELD) holds.
func (s queries) ListHeldByBounty(ctx context.Context, bountyID string) ([]domain.EscrowHold, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, bounty_id, holder, amount, status, created_at, released_at
		FROM escrow_holds WHERE bounty_id = ? AND status = 'HELD'
		ORDER BY rowid
	`, bountyID)
	if err != nil {
		return nil, fmt.Errorf("list held by bounty: %w", err)
	}
	defer rows.Close()

	var holds []domain.EscrowHold
	for rows.Next() {
		var (
			h           domain.EscrowHold
			amount      int64
			createdStr  string
			releasedStr sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.BountyID, (*string)(&h.Holder), &amount, (*string)(&h.Status), &createdStr, &releasedStr); err != nil {
			return nil, fmt.Errorf("scan escrow hold: %w", err)
		}
		h.Amount = domain.Amount(amount)
		if h.CreatedAt, err = decodeTime(createdStr); err != nil {
			return nil, fmt.Errorf("scan escrow hold: %w", err)
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
