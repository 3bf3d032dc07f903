// Package ledger is the money layer of the settlement core. Every monetary
// movement is one immutable ledger entry appended atomically with the balance
// mutation it causes; balances are a projection, the ledger is the truth.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/metrics"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

// Service appends ledger entries and serves balance projections.
type Service struct {
	db       *sqlite.DB
	log      *zap.Logger
	promoCap domain.Amount
	now      func() time.Time
}

// New creates the ledger service. promoCap is the lifetime promo-mint ceiling
// per identity.
func New(db *sqlite.DB, log *zap.Logger, promoCap domain.Amount) *Service {
	return &Service{
		db:       db,
		log:      log.Named("ledger"),
		promoCap: promoCap,
		now:      time.Now,
	}
}

// ─── Append ─────────────────────────────────────────────────────────────────

// Append validates the entry, inserts it, and applies the balance mutation
// the entry kind implies, all inside the caller's transaction. This is the
// only write path into the money tables; escrow and dispute settlement
// compose their multi-entry effects from it.
func (s *Service) Append(ctx context.Context, tx *sqlite.Tx, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.Amount <= 0 {
		return e, fmt.Errorf("%w: ledger amount must be positive", domain.ErrValidation)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	if err := tx.InsertLedgerEntry(ctx, e); err != nil {
		return e, err
	}
	if err := s.applyBalances(ctx, tx, e); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			metrics.InsufficientFunds.Inc()
		}
		return e, err
	}
	metrics.LedgerEntries.WithLabelValues(string(e.Kind)).Inc()
	return e, nil
}

// applyBalances mutates the balance projection for one entry. Hold debits and
// Release credits mirror Burn and Mint; the escrow table tracks the held
// amount between the two.
func (s *Service) applyBalances(ctx context.Context, tx *sqlite.Tx, e domain.LedgerEntry) error {
	switch e.Kind {
	case domain.EntryMint, domain.EntryRelease:
		return tx.CreditBalance(ctx, e.To, e.Amount)
	case domain.EntryPromoMint:
		return tx.CreditPromo(ctx, e.To, e.Amount, s.promoCap)
	case domain.EntryBurn, domain.EntryHold:
		return tx.DebitSpendable(ctx, e.From, e.Amount)
	case domain.EntryTransfer:
		if err := tx.DebitSpendable(ctx, e.From, e.Amount); err != nil {
			return err
		}
		return tx.CreditBalance(ctx, e.To, e.Amount)
	default:
		return fmt.Errorf("%w: unknown entry kind %q", domain.ErrInternal, e.Kind)
	}
}

// ─── Operations ─────────────────────────────────────────────────────────────

// Mint issues new credits to an identity. Trusted callers only (node
// operator, settlement of external payment rails).
func (s *Service) Mint(ctx context.Context, to domain.Identity, amount domain.Amount, metadata string) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		entry, err = s.Append(ctx, tx, domain.LedgerEntry{
			Kind:     domain.EntryMint,
			To:       to,
			Amount:   amount,
			Metadata: metadata,
		})
		return err
	})
	if err != nil {
		return entry, err
	}
	s.log.Info("minted credits",
		zap.String("to", string(to)),
		zap.Stringer("amount", amount))
	return entry, nil
}

// PromoMint issues promotional credits, subject to the per-identity lifetime
// cap. Promo credits spend like normal credits but are drawn last.
func (s *Service) PromoMint(ctx context.Context, to domain.Identity, amount domain.Amount, metadata string) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		entry, err = s.Append(ctx, tx, domain.LedgerEntry{
			Kind:     domain.EntryPromoMint,
			To:       to,
			Amount:   amount,
			Metadata: metadata,
		})
		return err
	})
	if err != nil {
		return entry, err
	}
	s.log.Info("minted promo credits",
		zap.String("to", string(to)),
		zap.Stringer("amount", amount))
	return entry, nil
}

// Redeem burns credits out of circulation, e.g. when an identity cashes out.
func (s *Service) Redeem(ctx context.Context, from domain.Identity, amount domain.Amount, metadata string) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		entry, err = s.Append(ctx, tx, domain.LedgerEntry{
			Kind:     domain.EntryBurn,
			From:     from,
			Amount:   amount,
			Metadata: metadata,
		})
		return err
	})
	if err != nil {
		return entry, err
	}
	s.log.Info("redeemed credits",
		zap.String("from", string(from)),
		zap.Stringer("amount", amount))
	return entry, nil
}

// Transfer moves credits between identities.
func (s *Service) Transfer(ctx context.Context, from, to domain.Identity, amount domain.Amount, metadata string) (domain.LedgerEntry, error) {
	if from == to {
		return domain.LedgerEntry{}, fmt.Errorf("%w: cannot transfer to self", domain.ErrValidation)
	}
	var entry domain.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		entry, err = s.Append(ctx, tx, domain.LedgerEntry{
			Kind:     domain.EntryTransfer,
			From:     from,
			To:       to,
			Amount:   amount,
			Metadata: metadata,
		})
		return err
	})
	return entry, err
}

// Balance returns the balance projection for an identity. A never-seen
// identity has a zero balance.
func (s *Service) Balance(ctx context.Context, identity domain.Identity) (domain.Account, error) {
	return s.db.GetAccount(ctx, identity)
}

// History returns the ledger entries touching an identity, oldest first.
func (s *Service) History(ctx context.Context, identity domain.Identity, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.db.ListLedgerEntries(ctx, identity, limit)
}

// Reconcile recomputes every balance from ledger facts and reports accounts
// whose projection drifted. A nonzero drift means a bug or tampering; the
// pass is diagnostic and never mutates.
func (s *Service) Reconcile(ctx context.Context) ([]sqlite.LedgerDrift, error) {
	drifts, err := s.db.ReconcileBalances(ctx)
	if err != nil {
		return nil, err
	}
	var totalDrift int64
	var drifted []sqlite.LedgerDrift
	for _, d := range drifts {
		if d.Drift() != 0 {
			drifted = append(drifted, d)
			totalDrift += abs(d.Drift())
			s.log.Warn("balance drift detected",
				zap.String("identity", string(d.Identity)),
				zap.Int64("expected", d.Expected),
				zap.Int64("actual", d.Actual))
		}
	}
	metrics.ReconcileDrift.Set(float64(totalDrift))
	metrics.ReconcileDriftedAccounts.Set(float64(len(drifted)))
	return drifted, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
