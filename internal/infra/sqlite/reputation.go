package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Reputation Operations ──────────────────────────────────────────────────

// InsertReputationEvent appends one immutable reputation fact.
func (s queries) InsertReputationEvent(ctx context.Context, e domain.ReputationEvent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reputation_events (id, identity, kind, base_amount, closure_weight,
			reviewer_weight, weighted_amount, reason, bounty_id, dispute_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Identity), string(e.Kind), int64(e.Base), e.ClosureWeight.String(),
		e.ReviewerWeight.String(), e.Weighted, e.Reason, e.BountyID, e.DisputeID, encodeTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert reputation event: %w", err)
	}
	return nil
}

// GetReputationTotal returns the materialized total (base units) and the
// decay anchor. A missing row reports found=false with zero total.
func (s queries) GetReputationTotal(ctx context.Context, identity domain.Identity) (total int64, lastDecay time.Time, found bool, err error) {
	var decayStr string
	err = s.q.QueryRowContext(ctx, `
		SELECT total, last_decay_at FROM reputation_totals WHERE identity = ?
	`, string(identity)).Scan(&total, &decayStr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("get reputation total: %w", err)
	}
	lastDecay, err = decodeTime(decayStr)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("get reputation total: %w", err)
	}
	return total, lastDecay, true, nil
}

// AddReputationTotal applies a signed delta to the materialized total,
// clamped at zero, creating the row lazily. One atomic statement.
func (s queries) AddReputationTotal(ctx context.Context, identity domain.Identity, delta int64, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reputation_totals (identity, total, last_decay_at, updated_at)
		VALUES (?1, max(0, ?2), ?3, ?3)
		ON CONFLICT(identity) DO UPDATE SET
			total      = max(0, total + ?2),
			updated_at = ?3
	`, string(identity), delta, encodeTime(now))
	if err != nil {
		return fmt.Errorf("add reputation total: %w", err)
	}
	return nil
}

// SetReputationTotal overwrites the total and decay anchor after a decay
// catch-up.
func (s queries) SetReputationTotal(ctx context.Context, identity domain.Identity, total int64, lastDecay, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE reputation_totals SET total = max(0, ?), last_decay_at = ?, updated_at = ?
		WHERE identity = ?
	`, total, encodeTime(lastDecay), encodeTime(now), string(identity))
	if err != nil {
		return fmt.Errorf("set reputation total: %w", err)
	}
	return nil
}

// ListReputationEvents returns an identity's reputation facts, oldest first.
func (s queries) ListReputationEvents(ctx context.Context, identity domain.Identity, limit int) ([]domain.ReputationEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, identity, kind, base_amount, closure_weight, reviewer_weight,
			weighted_amount, reason, bounty_id, dispute_id, created_at
		FROM reputation_events WHERE identity = ? ORDER BY rowid LIMIT ?
	`, string(identity), limit)
	if err != nil {
		return nil, fmt.Errorf("list reputation events: %w", err)
	}
	defer rows.Close()

	var events []domain.ReputationEvent
	for rows.Next() {
		var (
			e              domain.ReputationEvent
			base           int64
			cwStr, rwStr   string
			createdStr     string
		)
		if err := rows.Scan(&e.ID, (*string)(&e.Identity), (*string)(&e.Kind), &base, &cwStr, &rwStr,
			&e.Weighted, &e.Reason, &e.BountyID, &e.DisputeID, &createdStr); err != nil {
			return nil, fmt.Errorf("scan reputation event: %w", err)
		}
		e.Base = domain.Amount(base)
		if e.ClosureWeight, err = decimal.NewFromString(cwStr); err != nil {
			return nil, fmt.Errorf("scan closure weight: %w", err)
		}
		if e.ReviewerWeight, err = decimal.NewFromString(rwStr); err != nil {
			return nil, fmt.Errorf("scan reviewer weight: %w", err)
		}
		if e.CreatedAt, err = decodeTime(createdStr); err != nil {
			return nil, fmt.Errorf("scan reputation event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
