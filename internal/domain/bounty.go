package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Bounty Types ───────────────────────────────────────────────────────────

// ClosureType is the verification method judging a bounty submission.
type ClosureType string

const (
	// ClosureTests auto-resolves against an execution receipt.
	ClosureTests ClosureType = "TESTS"
	// ClosureQuorum requires agreement from a reviewer quorum.
	ClosureQuorum ClosureType = "QUORUM"
	// ClosureRequester requires approval by the poster.
	ClosureRequester ClosureType = "REQUESTER"
)

// ClosureMetadata is the tagged closure-type-dependent configuration,
// validated at the boundary rather than carried as an opaque document.
type ClosureMetadata struct {
	// HarnessHash is the expected test harness digest (Tests closure).
	HarnessHash string `json:"harness_hash,omitempty"`
	// ReviewerCount is the quorum size (Quorum closure).
	ReviewerCount int `json:"reviewer_count,omitempty"`
	// MinReviewerRep is the minimum reviewer reputation (Quorum closure).
	MinReviewerRep Amount `json:"min_reviewer_rep,omitempty"`
}

// BountyStatus is the bounty lifecycle state.
//
//	PendingApproval ⇒ Open ⇒ InProgress ⇒ Completed
//	Cancelled reachable from PendingApproval, Open, InProgress
type BountyStatus string

const (
	BountyPendingApproval BountyStatus = "PENDING_APPROVAL"
	BountyOpen            BountyStatus = "OPEN"
	BountyInProgress      BountyStatus = "IN_PROGRESS"
	BountyCompleted       BountyStatus = "COMPLETED"
	BountyCancelled       BountyStatus = "CANCELLED"
)

// Terminal reports whether the bounty can no longer transition.
func (s BountyStatus) Terminal() bool {
	return s == BountyCompleted || s == BountyCancelled
}

// Bounty is a funded unit of marketplace work.
type Bounty struct {
	ID          string          `json:"id"`
	Poster      Identity        `json:"poster"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Reward      Amount          `json:"reward"`
	ClosureType ClosureType     `json:"closure_type"`
	Closure     ClosureMetadata `json:"closure_metadata"`
	Status      BountyStatus    `json:"status"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ValidateClosure checks that the metadata matches the closure type.
func (b Bounty) ValidateClosure() error {
	switch b.ClosureType {
	case ClosureTests:
		if strings.TrimSpace(b.Closure.HarnessHash) == "" {
			return fmt.Errorf("%w: tests closure requires harness_hash", ErrValidation)
		}
	case ClosureQuorum:
		if b.Closure.ReviewerCount < 1 {
			return fmt.Errorf("%w: quorum closure requires reviewer_count >= 1", ErrValidation)
		}
	case ClosureRequester:
		if b.Closure != (ClosureMetadata{}) {
			return fmt.Errorf("%w: requester closure takes no metadata", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown closure type %q", ErrValidation, b.ClosureType)
	}
	return nil
}

// AcceptsSubmissions reports whether a new submission is allowed at the
// given instant. Deadlines are evaluated here, at submission time — never by
// a background sweep.
func (b Bounty) AcceptsSubmissions(now time.Time) error {
	if b.Status != BountyOpen {
		return fmt.Errorf("%w: bounty is %s, not open", ErrInvalidState, b.Status)
	}
	if b.Deadline != nil && now.After(*b.Deadline) {
		return fmt.Errorf("%w: bounty deadline has passed", ErrValidation)
	}
	return nil
}

// ─── Submission Types ───────────────────────────────────────────────────────

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionApproved SubmissionStatus = "APPROVED"
	SubmissionRejected SubmissionStatus = "REJECTED"
)

// ExecutionReceipt reports a test-harness run attached to a submission
// against a Tests-closure bounty.
type ExecutionReceipt struct {
	HarnessHash    string `json:"harness_hash"`
	AllTestsPassed bool   `json:"all_tests_passed"`
}

// Matches reports whether the receipt satisfies the expected harness hash.
// The hash comparison is exact equality; anything else is a mismatch.
func (r ExecutionReceipt) Matches(expectedHarness string) bool {
	return r.HarnessHash == expectedHarness && r.AllTestsPassed
}

// BountySubmission is signed work submitted against an open bounty.
type BountySubmission struct {
	ID           string            `json:"id"`
	BountyID     string            `json:"bounty_id"`
	Submitter    Identity          `json:"submitter"`
	ArtifactHash string            `json:"artifact_hash"`
	Envelope     SignedEnvelope    `json:"signed_envelope"`
	Receipt      *ExecutionReceipt `json:"execution_receipt,omitempty"`
	Status       SubmissionStatus  `json:"status"`
	ArtifactID   string            `json:"artifact_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
}
