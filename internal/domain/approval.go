package domain

import "time"

// ─── Approval Types ─────────────────────────────────────────────────────────

// ApprovalAction is what an approval request authorizes.
type ApprovalAction string

const (
	// ActionSpend authorizes funding a bounty above a policy threshold.
	// Approval opens the escrow hold exactly once.
	ActionSpend ApprovalAction = "SPEND"
	// ActionDelegate authorizes a delegate identity. No financial effect.
	ActionDelegate ApprovalAction = "DELEGATE"
)

// ApprovalStatus is the cached request state. Expiry is always derived from
// ExpiresAt at read time; the stored status only catches up as a side
// effect of an access that observed expiry.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

// ApprovalRequest defers a policy-flagged action until the designated
// operator rules on it.
type ApprovalRequest struct {
	ID        string         `json:"id"`
	Operator  Identity       `json:"operator"`
	Requester Identity       `json:"requester"`
	Action    ApprovalAction `json:"action"`
	Amount    Amount         `json:"amount,omitempty"`
	BountyID  string         `json:"bounty_id,omitempty"`
	// Delegate is the identity being authorized (Delegate action only).
	Delegate         Identity       `json:"delegate,omitempty"`
	Status           ApprovalStatus `json:"status"`
	ExpiresAt        time.Time      `json:"expires_at"`
	ResolutionReason string         `json:"resolution_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// IsExpired is a pure function of the wall clock against ExpiresAt,
// independent of the cached Status field.
func (r ApprovalRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ─── Spend Policy ───────────────────────────────────────────────────────────

// ApprovalTier is one amount threshold in a spend policy. Spending above
// Threshold requires approval by Operator.
type ApprovalTier struct {
	Threshold Amount   `json:"threshold"`
	Operator  Identity `json:"operator"`
}

// SpendPolicy is the per-identity spending policy resolved by the external
// policy provider.
type SpendPolicy struct {
	Enabled          bool           `json:"enabled"`
	MaxPerDay        Amount         `json:"max_per_day"`
	MaxPerBounty     Amount         `json:"max_per_bounty"`
	ApprovalTiers    []ApprovalTier `json:"approval_tiers"`
	AllowedDelegates []Identity     `json:"allowed_delegates"`
}

// RequiresApproval returns the highest exceeded tier requiring approval for
// the amount, or nil. Disabled policies never require approval.
func (p SpendPolicy) RequiresApproval(amount Amount) *ApprovalTier {
	if !p.Enabled {
		return nil
	}
	var highest *ApprovalTier
	for i := range p.ApprovalTiers {
		tier := p.ApprovalTiers[i]
		if amount <= tier.Threshold {
			continue
		}
		if highest == nil || tier.Threshold > highest.Threshold {
			highest = &tier
		}
	}
	return highest
}

// IsAllowedDelegate reports whether the identity appears in the policy's
// delegate allowlist.
func (p SpendPolicy) IsAllowedDelegate(id Identity) bool {
	for _, d := range p.AllowedDelegates {
		if d == id {
			return true
		}
	}
	return false
}
