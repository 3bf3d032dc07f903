// Package reputation maintains earned, decaying reputation scores. Scores
// are non-transferable and live in a log separate from the money ledger:
// every change is an immutable event, the total is a projection clamped at
// zero, and inactivity decay is applied lazily on read.
package reputation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

// decayPeriod is one reputation "month" for decay purposes.
const decayPeriod = 30 * 24 * time.Hour

// Service records reputation events and serves decayed scores.
type Service struct {
	db          *sqlite.DB
	log         *zap.Logger
	decayFactor decimal.Decimal
	now         func() time.Time
}

// New creates the reputation service. decayFactor is the per-month retention
// multiplier, e.g. 0.99 keeps 99% of the score per month of inactivity.
func New(db *sqlite.DB, log *zap.Logger, decayFactor decimal.Decimal) *Service {
	return &Service{
		db:          db,
		log:         log.Named("reputation"),
		decayFactor: decayFactor,
		now:         time.Now,
	}
}

// Change describes one reputation event to record. Base and the weights
// determine the credited amount; penalties pass the already-positive amount
// and are negated internally.
type Change struct {
	Identity       domain.Identity
	Kind           domain.ReputationKind
	Base           domain.Amount
	ClosureWeight  decimal.Decimal
	ReviewerWeight decimal.Decimal
	Reason         string
	BountyID       string
	DisputeID      string
}

// ─── Transactional Primitives ───────────────────────────────────────────────

// CreditTx records a positive reputation event and adds the weighted amount
// to the identity's total, inside the caller's transaction.
func (s *Service) CreditTx(ctx context.Context, tx *sqlite.Tx, c Change) (domain.ReputationEvent, error) {
	weighted := int64(domain.WeightedAmount(c.Base, weightOrOne(c.ClosureWeight), weightOrOne(c.ReviewerWeight)))
	return s.recordTx(ctx, tx, c, weighted)
}

// PenaltyTx records a negative reputation event. The total clamps at zero;
// the event keeps the full negative amount so the log stays honest even when
// the projection cannot go lower.
func (s *Service) PenaltyTx(ctx context.Context, tx *sqlite.Tx, c Change) (domain.ReputationEvent, error) {
	return s.recordTx(ctx, tx, c, -int64(c.Base))
}

func (s *Service) recordTx(ctx context.Context, tx *sqlite.Tx, c Change, weighted int64) (domain.ReputationEvent, error) {
	e := domain.ReputationEvent{
		ID:             uuid.NewString(),
		Identity:       c.Identity,
		Kind:           c.Kind,
		Base:           c.Base,
		ClosureWeight:  weightOrOne(c.ClosureWeight),
		ReviewerWeight: weightOrOne(c.ReviewerWeight),
		Weighted:       weighted,
		Reason:         c.Reason,
		BountyID:       c.BountyID,
		DisputeID:      c.DisputeID,
		CreatedAt:      s.now().UTC(),
	}
	if err := tx.InsertReputationEvent(ctx, e); err != nil {
		return e, err
	}
	if err := tx.AddReputationTotal(ctx, c.Identity, weighted, e.CreatedAt); err != nil {
		return e, err
	}
	return e, nil
}

// ─── Public Operations ──────────────────────────────────────────────────────

// Credit records a positive reputation event in its own transaction.
func (s *Service) Credit(ctx context.Context, c Change) (domain.ReputationEvent, error) {
	var e domain.ReputationEvent
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		e, err = s.CreditTx(ctx, tx, c)
		return err
	})
	return e, err
}

// Score returns the identity's current score with inactivity decay applied.
// Decay is computed from whole elapsed periods since the last decay anchor;
// when at least one period passed, the catch-up is persisted as a Decay
// event so the log explains the new total. Concurrent reads race benignly:
// the decay write targets the same deterministic total.
func (s *Service) Score(ctx context.Context, identity domain.Identity) (domain.Amount, error) {
	total, lastDecay, found, err := s.db.GetReputationTotal(ctx, identity)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	now := s.now().UTC()
	periods := int64(now.Sub(lastDecay) / decayPeriod)
	if periods <= 0 || total == 0 {
		return domain.Amount(total), nil
	}

	factor := s.decayFactor.Pow(decimal.NewFromInt(periods))
	decayed := decimal.NewFromInt(total).Mul(factor).Round(0).IntPart()
	delta := decayed - total
	anchor := lastDecay.Add(time.Duration(periods) * decayPeriod)

	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if delta != 0 {
			if err := tx.InsertReputationEvent(ctx, domain.ReputationEvent{
				ID:             uuid.NewString(),
				Identity:       identity,
				Kind:           domain.RepDecay,
				ClosureWeight:  decimal.NewFromInt(1),
				ReviewerWeight: decimal.NewFromInt(1),
				Weighted:       delta,
				Reason:         "inactivity decay",
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}
		return tx.SetReputationTotal(ctx, identity, decayed, anchor, now)
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug("applied reputation decay",
		zap.String("identity", string(identity)),
		zap.Int64("periods", periods),
		zap.Int64("before", total),
		zap.Int64("after", decayed))
	return domain.Amount(decayed), nil
}

// Events returns the identity's reputation log, oldest first.
func (s *Service) Events(ctx context.Context, identity domain.Identity, limit int) ([]domain.ReputationEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.db.ListReputationEvents(ctx, identity, limit)
}

func weightOrOne(w decimal.Decimal) decimal.Decimal {
	if w.IsZero() {
		return decimal.NewFromInt(1)
	}
	return w
}
