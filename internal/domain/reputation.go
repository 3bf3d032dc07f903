package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Reputation Types ───────────────────────────────────────────────────────

// ReputationKind is the business reason for a reputation event.
type ReputationKind string

const (
	RepBountyCompletion   ReputationKind = "BOUNTY_COMPLETION"
	RepReviewContribution ReputationKind = "REVIEW_CONTRIBUTION"
	RepManualAdjustment   ReputationKind = "MANUAL_ADJUSTMENT"
	RepDecay              ReputationKind = "DECAY"
	RepDisputePenalty     ReputationKind = "DISPUTE_PENALTY"
	RepDisputeReward      ReputationKind = "DISPUTE_REWARD"
)

// ReputationEvent is one immutable fact in the reputation log.
// Weighted = round(Base × ClosureWeight × ReviewerWeight, 8 digits);
// negative Weighted values record penalties and decay.
type ReputationEvent struct {
	ID             string          `json:"id"`
	Identity       Identity        `json:"identity"`
	Kind           ReputationKind  `json:"kind"`
	Base           Amount          `json:"base_amount"`
	ClosureWeight  decimal.Decimal `json:"closure_weight"`
	ReviewerWeight decimal.Decimal `json:"reviewer_weight"`
	// Weighted is in base units like Amount but may be negative.
	Weighted  int64     `json:"weighted_amount"`
	Reason    string    `json:"reason,omitempty"`
	BountyID  string    `json:"bounty_id,omitempty"`
	DisputeID string    `json:"dispute_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WeightedAmount computes the weighted reputation delta for a credit,
// rounded half-up to 8 fractional digits.
func WeightedAmount(base Amount, closureWeight, reviewerWeight decimal.Decimal) Amount {
	return base.MulRound(closureWeight.Mul(reviewerWeight))
}
