// Package domain contains pure business types with ZERO infrastructure
// imports. This is the innermost ring — it depends on nothing but the
// decimal library for fixed-point arithmetic.
package domain

import (
	"fmt"
	"time"
)

// Identity names a marketplace participant. In the full system this is a
// DID bound to a public key; the settlement core treats it as opaque.
type Identity string

// ─── Ledger Types ───────────────────────────────────────────────────────────

// EntryKind is the kind of monetary movement a ledger entry records.
type EntryKind string

const (
	EntryMint      EntryKind = "MINT"
	EntryBurn      EntryKind = "BURN"
	EntryTransfer  EntryKind = "TRANSFER"
	EntryHold      EntryKind = "HOLD"
	EntryRelease   EntryKind = "RELEASE"
	EntryPromoMint EntryKind = "PROMO_MINT"
)

// LedgerEntry is one immutable fact in the append-only money log. It is the
// sole source of truth for money movement: never updated, never deleted.
//
// Exactly one of From/To is set for Mint, Burn, Hold, Release and PromoMint;
// both are set for Transfer.
type LedgerEntry struct {
	ID        string    `json:"id"`
	Kind      EntryKind `json:"kind"`
	From      Identity  `json:"from,omitempty"`
	To        Identity  `json:"to,omitempty"`
	Amount    Amount    `json:"amount"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the from/to shape for the entry kind and that the amount
// is non-negative (the Amount type already forbids negatives at parse time,
// but entries can be constructed directly).
func (e LedgerEntry) Validate() error {
	if e.Amount < 0 {
		return fmt.Errorf("%w: ledger amount must be non-negative", ErrValidation)
	}
	switch e.Kind {
	case EntryMint, EntryPromoMint, EntryRelease:
		if e.To == "" || e.From != "" {
			return fmt.Errorf("%w: %s entry must have to and no from", ErrValidation, e.Kind)
		}
	case EntryBurn, EntryHold:
		if e.From == "" || e.To != "" {
			return fmt.Errorf("%w: %s entry must have from and no to", ErrValidation, e.Kind)
		}
	case EntryTransfer:
		if e.From == "" || e.To == "" {
			return fmt.Errorf("%w: transfer entry must have both from and to", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown entry kind %q", ErrValidation, e.Kind)
	}
	return nil
}

// ─── Account ────────────────────────────────────────────────────────────────

// Account is the materialized balance projection for one identity, updated
// atomically alongside each ledger append. Accounts are created lazily on
// first credit.
type Account struct {
	Identity     Identity `json:"identity"`
	Balance      Amount   `json:"balance"`
	PromoBalance Amount   `json:"promo_balance"`
	// PromoLifetime is the total promo ever minted to this identity,
	// capped at a configured lifetime maximum.
	PromoLifetime Amount `json:"promo_lifetime"`
}

// Spendable is the total the identity can commit to holds and burns. Promo
// credits are drawn only after the main balance is exhausted.
func (a Account) Spendable() Amount {
	return a.Balance + a.PromoBalance
}
