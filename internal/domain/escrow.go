package domain

import "time"

// ─── Escrow Types ───────────────────────────────────────────────────────────

// HoldStatus is the lifecycle state of an escrow hold. Released and
// Cancelled are terminal and mutually exclusive.
type HoldStatus string

const (
	HoldHeld      HoldStatus = "HELD"
	HoldReleased  HoldStatus = "RELEASED"
	HoldCancelled HoldStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s HoldStatus) Terminal() bool {
	return s == HoldReleased || s == HoldCancelled
}

// EscrowHold earmarks funds for a bounty: the amount leaves the holder's
// spendable balance when the hold opens and re-enters circulation only via
// release (to a recipient) or cancellation (back to the holder).
type EscrowHold struct {
	ID         string     `json:"id"`
	BountyID   string     `json:"bounty_id"`
	Holder     Identity   `json:"holder"`
	Amount     Amount     `json:"amount"`
	Status     HoldStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}
