package domain

import "time"

// ─── Dispute Types ──────────────────────────────────────────────────────────

// DisputeStatus is the arbitration state of a dispute.
type DisputeStatus string

const (
	DisputePending  DisputeStatus = "PENDING"
	DisputeResolved DisputeStatus = "RESOLVED"
	DisputeExpired  DisputeStatus = "EXPIRED"
)

// DisputeOutcome is the arbiter's ruling. The two outcomes trigger mutually
// exclusive financial effects: UpholdSubmission never returns the
// initiator's stake, RejectSubmission never slashes it.
type DisputeOutcome string

const (
	OutcomeUpholdSubmission DisputeOutcome = "UPHOLD_SUBMISSION"
	OutcomeRejectSubmission DisputeOutcome = "REJECT_SUBMISSION"
)

// Dispute is a bonded challenge against a resolved submission. The stake is
// a second escrow hold (a fixed fraction of the bounty reward) owned by the
// initiator.
type Dispute struct {
	ID            string          `json:"id"`
	BountyID      string          `json:"bounty_id"`
	SubmissionID  string          `json:"submission_id"`
	Initiator     Identity        `json:"initiator"`
	Reason        string          `json:"reason"`
	StakeAmount   Amount          `json:"stake_amount"`
	StakeEscrowID string          `json:"stake_escrow_id"`
	Status        DisputeStatus   `json:"status"`
	Outcome       *DisputeOutcome `json:"resolution_outcome,omitempty"`
	Resolver      Identity        `json:"resolver,omitempty"`
	Deadline      time.Time       `json:"deadline"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PastDeadline is a pure function of the wall clock; the stored status only
// flips to Expired as a side effect of an access that observed this.
func (d Dispute) PastDeadline(now time.Time) bool {
	return now.After(d.Deadline)
}
