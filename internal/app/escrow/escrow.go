// Package escrow manages earmarked funds. A hold debits the holder's
// spendable balance when it opens and the money re-enters circulation through
// exactly one of three terminal paths: release to a recipient, cancellation
// back to the holder, or a slash that refunds and immediately burns.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/app/ledger"
	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

// Service opens and settles escrow holds. All money movement goes through
// the ledger service so every hold lifecycle step is a ledger fact.
type Service struct {
	db     *sqlite.DB
	ledger *ledger.Service
	log    *zap.Logger
	now    func() time.Time
}

// New creates the escrow service.
func New(db *sqlite.DB, ldg *ledger.Service, log *zap.Logger) *Service {
	return &Service{
		db:     db,
		ledger: ldg,
		log:    log.Named("escrow"),
		now:    time.Now,
	}
}

// ─── Transactional Primitives ───────────────────────────────────────────────
// The Tx-suffixed methods run inside a caller-owned transaction so bounty
// and dispute settlement can combine hold effects with their own state
// transitions atomically.

// OpenTx debits the holder's spendable balance and records a HELD hold.
// Fails with ErrInsufficientFunds when the holder cannot cover the amount.
func (s *Service) OpenTx(ctx context.Context, tx *sqlite.Tx, bountyID string, holder domain.Identity, amount domain.Amount) (domain.EscrowHold, error) {
	hold := domain.EscrowHold{
		ID:        uuid.NewString(),
		BountyID:  bountyID,
		Holder:    holder,
		Amount:    amount,
		Status:    domain.HoldHeld,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.ledger.Append(ctx, tx, domain.LedgerEntry{
		Kind:     domain.EntryHold,
		From:     holder,
		Amount:   amount,
		Metadata: fmt.Sprintf("hold %s for bounty %s", hold.ID, bountyID),
	}); err != nil {
		return hold, err
	}
	if err := tx.InsertEscrowHold(ctx, hold); err != nil {
		return hold, err
	}
	return hold, nil
}

// ReleaseTx settles a hold to the recipient. The hold must still be HELD;
// a terminal hold reports ErrInvalidState and nothing moves.
func (s *Service) ReleaseTx(ctx context.Context, tx *sqlite.Tx, holdID string, recipient domain.Identity) error {
	hold, err := tx.GetEscrowHold(ctx, holdID)
	if err != nil {
		return err
	}
	if err := tx.CloseEscrowHold(ctx, holdID, domain.HoldReleased, s.now().UTC()); err != nil {
		return err
	}
	_, err = s.ledger.Append(ctx, tx, domain.LedgerEntry{
		Kind:     domain.EntryRelease,
		To:       recipient,
		Amount:   hold.Amount,
		Metadata: fmt.Sprintf("release hold %s", holdID),
	})
	return err
}

// CancelTx refunds a hold to its holder.
func (s *Service) CancelTx(ctx context.Context, tx *sqlite.Tx, holdID string) error {
	hold, err := tx.GetEscrowHold(ctx, holdID)
	if err != nil {
		return err
	}
	if err := tx.CloseEscrowHold(ctx, holdID, domain.HoldCancelled, s.now().UTC()); err != nil {
		return err
	}
	_, err = s.ledger.Append(ctx, tx, domain.LedgerEntry{
		Kind:     domain.EntryRelease,
		To:       hold.Holder,
		Amount:   hold.Amount,
		Metadata: fmt.Sprintf("cancel hold %s", holdID),
	})
	return err
}

// SlashTx forfeits a hold: the amount is returned to the holder's balance
// and immediately burned in the same transaction, so the ledger shows both
// the hold settlement and the destruction of the funds.
func (s *Service) SlashTx(ctx context.Context, tx *sqlite.Tx, holdID string) error {
	hold, err := tx.GetEscrowHold(ctx, holdID)
	if err != nil {
		return err
	}
	if err := tx.CloseEscrowHold(ctx, holdID, domain.HoldReleased, s.now().UTC()); err != nil {
		return err
	}
	if _, err := s.ledger.Append(ctx, tx, domain.LedgerEntry{
		Kind:     domain.EntryRelease,
		To:       hold.Holder,
		Amount:   hold.Amount,
		Metadata: fmt.Sprintf("slash hold %s", holdID),
	}); err != nil {
		return err
	}
	_, err = s.ledger.Append(ctx, tx, domain.LedgerEntry{
		Kind:     domain.EntryBurn,
		From:     hold.Holder,
		Amount:   hold.Amount,
		Metadata: fmt.Sprintf("slash hold %s", holdID),
	})
	return err
}

// ─── Public Operations ──────────────────────────────────────────────────────

// Open opens a hold in its own transaction.
func (s *Service) Open(ctx context.Context, bountyID string, holder domain.Identity, amount domain.Amount) (domain.EscrowHold, error) {
	var hold domain.EscrowHold
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		hold, err = s.OpenTx(ctx, tx, bountyID, holder, amount)
		return err
	})
	if err != nil {
		return hold, err
	}
	s.log.Info("escrow hold opened",
		zap.String("hold", hold.ID),
		zap.String("bounty", bountyID),
		zap.String("holder", string(holder)),
		zap.Stringer("amount", amount))
	return hold, nil
}

// Release settles a hold to the recipient in its own transaction.
func (s *Service) Release(ctx context.Context, holdID string, recipient domain.Identity) error {
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		return s.ReleaseTx(ctx, tx, holdID, recipient)
	})
	if err != nil {
		return err
	}
	s.log.Info("escrow hold released",
		zap.String("hold", holdID),
		zap.String("recipient", string(recipient)))
	return nil
}

// Cancel refunds a hold in its own transaction.
func (s *Service) Cancel(ctx context.Context, holdID string) error {
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		return s.CancelTx(ctx, tx, holdID)
	})
	if err != nil {
		return err
	}
	s.log.Info("escrow hold cancelled", zap.String("hold", holdID))
	return nil
}

// Get fetches one hold.
func (s *Service) Get(ctx context.Context, holdID string) (domain.EscrowHold, error) {
	return s.db.GetEscrowHold(ctx, holdID)
}
