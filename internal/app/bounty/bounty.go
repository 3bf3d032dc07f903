// Package bounty drives the bounty lifecycle: funding through escrow,
// policy-gated approval, signed submissions, auto-verification against test
// receipts, and settlement with reputation credit.
//
// Lifecycle:
//
//	PendingApproval ⇒ Open ⇒ InProgress ⇒ Completed
//	Cancelled reachable from the three non-terminal states
//
// Every transition that moves money happens in one transaction with the
// escrow settlement it implies.
package bounty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/app/escrow"
	"github.com/scrip-network/scrip/internal/app/reputation"
	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/metrics"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

// Config bounds bounty economics.
type Config struct {
	// MinReward and MaxReward bound the accepted reward range, inclusive.
	MinReward domain.Amount
	MaxReward domain.Amount
	// CompletionRate is the fraction of the reward credited as the base
	// reputation amount on completion.
	CompletionRate decimal.Decimal
	// ClosureWeights scales the reputation credit by closure type. Harder
	// verification earns more.
	ClosureWeights map[domain.ClosureType]decimal.Decimal
	// ApprovalTTL is how long a pending approval request stays actionable.
	ApprovalTTL time.Duration
}

// DefaultConfig returns the stock settlement parameters.
func DefaultConfig() Config {
	return Config{
		MinReward:      domain.Credits(1),
		MaxReward:      domain.Credits(10000),
		CompletionRate: decimal.NewFromFloat(0.1),
		ClosureWeights: map[domain.ClosureType]decimal.Decimal{
			domain.ClosureTests:     decimal.NewFromFloat(1.5),
			domain.ClosureQuorum:    decimal.NewFromFloat(1.2),
			domain.ClosureRequester: decimal.NewFromInt(1),
		},
		ApprovalTTL: 72 * time.Hour,
	}
}

// Service manages bounties, submissions, and the approval gate.
type Service struct {
	db         *sqlite.DB
	escrow     *escrow.Service
	reputation *reputation.Service
	verifier   domain.Verifier
	directory  domain.IdentityDirectory
	policy     domain.PolicyProvider
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

// New creates the bounty service.
func New(db *sqlite.DB, esc *escrow.Service, rep *reputation.Service,
	verifier domain.Verifier, directory domain.IdentityDirectory, policy domain.PolicyProvider,
	cfg Config, log *zap.Logger) *Service {
	return &Service{
		db:         db,
		escrow:     esc,
		reputation: rep,
		verifier:   verifier,
		directory:  directory,
		policy:     policy,
		cfg:        cfg,
		log:        log.Named("bounty"),
		now:        time.Now,
	}
}

// ─── Create ─────────────────────────────────────────────────────────────────

// CreateParams describes a new bounty.
type CreateParams struct {
	Poster      domain.Identity
	Title       string
	Description string
	Reward      domain.Amount
	ClosureType domain.ClosureType
	Closure     domain.ClosureMetadata
	Deadline    *time.Time
}

// Create posts a bounty. When the poster's spend policy flags the reward, the
// bounty parks in PendingApproval with a request routed to the tier operator
// and no money moves; otherwise the reward goes into escrow and the bounty
// opens immediately. The returned request is non-nil only in the gated case.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.Bounty, *domain.ApprovalRequest, error) {
	now := s.now().UTC()
	b := domain.Bounty{
		ID:          uuid.NewString(),
		Poster:      p.Poster,
		Title:       p.Title,
		Description: p.Description,
		Reward:      p.Reward,
		ClosureType: p.ClosureType,
		Closure:     p.Closure,
		Deadline:    p.Deadline,
		CreatedAt:   now,
	}
	if p.Poster == "" || p.Title == "" {
		return b, nil, fmt.Errorf("%w: poster and title are required", domain.ErrValidation)
	}
	if p.Reward < s.cfg.MinReward || p.Reward > s.cfg.MaxReward {
		return b, nil, fmt.Errorf("%w: reward %s outside [%s, %s]",
			domain.ErrValidation, p.Reward, s.cfg.MinReward, s.cfg.MaxReward)
	}
	if b.Deadline != nil && b.Deadline.Before(now) {
		return b, nil, fmt.Errorf("%w: deadline is in the past", domain.ErrValidation)
	}
	if err := b.ValidateClosure(); err != nil {
		return b, nil, err
	}

	policy, err := s.policy.PolicyFor(ctx, p.Poster)
	if err != nil {
		return b, nil, err
	}
	if policy.Enabled && policy.MaxPerBounty > 0 && p.Reward > policy.MaxPerBounty {
		return b, nil, fmt.Errorf("%w: reward exceeds per-bounty limit %s",
			domain.ErrForbidden, policy.MaxPerBounty)
	}

	var request *domain.ApprovalRequest
	tier := policy.RequiresApproval(p.Reward)
	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		// The daily-cap read shares the transaction with the HOLD it
		// guards, so concurrent creates serialize against each other.
		if policy.Enabled && policy.MaxPerDay > 0 {
			spent, err := tx.SumHoldsSince(ctx, p.Poster, now.Add(-24*time.Hour))
			if err != nil {
				return err
			}
			if spent+p.Reward > policy.MaxPerDay {
				return fmt.Errorf("%w: daily spend limit %s exhausted",
					domain.ErrForbidden, policy.MaxPerDay)
			}
		}
		if tier != nil {
			b.Status = domain.BountyPendingApproval
			if err := tx.InsertBounty(ctx, b); err != nil {
				return err
			}
			req := domain.ApprovalRequest{
				ID:        uuid.NewString(),
				Operator:  tier.Operator,
				Requester: p.Poster,
				Action:    domain.ActionSpend,
				Amount:    p.Reward,
				BountyID:  b.ID,
				Status:    domain.ApprovalPending,
				ExpiresAt: now.Add(s.cfg.ApprovalTTL),
				CreatedAt: now,
			}
			if err := tx.InsertApprovalRequest(ctx, req); err != nil {
				return err
			}
			request = &req
			return nil
		}
		b.Status = domain.BountyOpen
		if err := tx.InsertBounty(ctx, b); err != nil {
			return err
		}
		_, err := s.escrow.OpenTx(ctx, tx, b.ID, p.Poster, p.Reward)
		return err
	})
	if err != nil {
		return b, nil, err
	}

	metrics.BountyTransitions.WithLabelValues(string(b.Status)).Inc()
	s.log.Info("bounty created",
		zap.String("bounty", b.ID),
		zap.String("poster", string(p.Poster)),
		zap.Stringer("reward", p.Reward),
		zap.String("status", string(b.Status)))
	return b, request, nil
}

// ─── Cancel ─────────────────────────────────────────────────────────────────

// Cancel withdraws a bounty and refunds every outstanding hold to its
// holder. Only the poster may cancel; completed bounties cannot be.
func (s *Service) Cancel(ctx context.Context, bountyID string, caller domain.Identity) error {
	b, err := s.db.GetBounty(ctx, bountyID)
	if err != nil {
		return err
	}
	if b.Poster != caller {
		return fmt.Errorf("%w: only the poster can cancel", domain.ErrForbidden)
	}
	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.TransitionBounty(ctx, bountyID, []domain.BountyStatus{
			domain.BountyPendingApproval, domain.BountyOpen, domain.BountyInProgress,
		}, domain.BountyCancelled); err != nil {
			return err
		}
		return s.refundHoldsTx(ctx, tx, bountyID)
	})
	if err != nil {
		return err
	}
	metrics.BountyTransitions.WithLabelValues(string(domain.BountyCancelled)).Inc()
	s.log.Info("bounty cancelled", zap.String("bounty", bountyID))
	return nil
}

func (s *Service) refundHoldsTx(ctx context.Context, tx *sqlite.Tx, bountyID string) error {
	holds, err := tx.ListHeldByBounty(ctx, bountyID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if err := s.escrow.CancelTx(ctx, tx, h.ID); err != nil {
			return err
		}
	}
	return nil
}

// ─── Approval Gate ──────────────────────────────────────────────────────────

// RequestDelegation asks the requester's approval operator to authorize a
// delegate identity. No financial effect on either outcome.
func (s *Service) RequestDelegation(ctx context.Context, requester, delegate domain.Identity) (domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	if delegate == "" || delegate == requester {
		return req, fmt.Errorf("%w: invalid delegate", domain.ErrValidation)
	}
	policy, err := s.policy.PolicyFor(ctx, requester)
	if err != nil {
		return req, err
	}
	operator := seniorOperator(policy)
	if !policy.Enabled || operator == "" {
		return req, fmt.Errorf("%w: no approval operator configured for %s", domain.ErrValidation, requester)
	}
	now := s.now().UTC()
	req = domain.ApprovalRequest{
		ID:        uuid.NewString(),
		Operator:  operator,
		Requester: requester,
		Action:    domain.ActionDelegate,
		Delegate:  delegate,
		Status:    domain.ApprovalPending,
		ExpiresAt: now.Add(s.cfg.ApprovalTTL),
		CreatedAt: now,
	}
	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		return tx.InsertApprovalRequest(ctx, req)
	})
	return req, err
}

// ResolveApproval rules on a pending request. Only the designated operator
// may rule. Approving a spend request opens the bounty's escrow hold exactly
// once and moves the bounty to Open; rejecting it cancels the bounty. A
// request past its TTL is persisted as Expired on this access and treated
// like a rejection.
func (s *Service) ResolveApproval(ctx context.Context, requestID string, caller domain.Identity, approve bool, reason string) error {
	req, err := s.db.GetApprovalRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Operator != caller {
		return fmt.Errorf("%w: only the designated operator can rule", domain.ErrForbidden)
	}
	if req.Status != domain.ApprovalPending {
		return fmt.Errorf("%w: approval request is already %s", domain.ErrInvalidState, req.Status)
	}

	now := s.now().UTC()
	if req.IsExpired(now) {
		// Lazy expiry: persist what the clock already decided.
		if err := s.expireTx(ctx, req); err != nil {
			return err
		}
		return fmt.Errorf("%w: approval request expired at %s", domain.ErrInvalidState, req.ExpiresAt.Format(time.RFC3339))
	}

	status := domain.ApprovalRejected
	if approve {
		status = domain.ApprovalApproved
	}
	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.ResolveApprovalRequest(ctx, requestID, status, reason); err != nil {
			return err
		}
		if req.Action != domain.ActionSpend {
			return nil
		}
		if approve {
			if err := tx.TransitionBounty(ctx, req.BountyID,
				[]domain.BountyStatus{domain.BountyPendingApproval}, domain.BountyOpen); err != nil {
				return err
			}
			_, err := s.escrow.OpenTx(ctx, tx, req.BountyID, req.Requester, req.Amount)
			return err
		}
		return tx.TransitionBounty(ctx, req.BountyID,
			[]domain.BountyStatus{domain.BountyPendingApproval}, domain.BountyCancelled)
	})
	if err != nil {
		return err
	}
	metrics.ApprovalDecisions.WithLabelValues(string(status)).Inc()
	s.log.Info("approval resolved",
		zap.String("request", requestID),
		zap.String("operator", string(caller)),
		zap.String("status", string(status)))
	return nil
}

func (s *Service) expireTx(ctx context.Context, req domain.ApprovalRequest) error {
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalExpired, "ttl elapsed"); err != nil {
			return err
		}
		if req.Action == domain.ActionSpend {
			return tx.TransitionBounty(ctx, req.BountyID,
				[]domain.BountyStatus{domain.BountyPendingApproval}, domain.BountyCancelled)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ApprovalDecisions.WithLabelValues(string(domain.ApprovalExpired)).Inc()
	return nil
}

// PendingApprovals lists an operator's actionable requests.
func (s *Service) PendingApprovals(ctx context.Context, operator domain.Identity, limit int) ([]domain.ApprovalRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return s.db.ListApprovalRequests(ctx, operator, domain.ApprovalPending, limit)
}

// ─── Submissions ────────────────────────────────────────────────────────────

// SubmitParams describes a signed submission by a platform user.
type SubmitParams struct {
	BountyID     string
	User         string
	ArtifactHash string
	ArtifactID   string
	Envelope     domain.SignedEnvelope
	Receipt      *domain.ExecutionReceipt
}

// Submit records signed work against an open bounty. The submitter identity
// is resolved from the user's directory binding and must match the envelope
// signer; the signature is verified before anything is stored.
//
// For Tests-closure bounties the execution receipt decides the submission on
// the spot: a receipt matching the registered harness settles the bounty to
// the submitter, a mismatch records the rejection and leaves the bounty open
// with its escrow intact. Other closures park the submission pending review.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (domain.BountySubmission, error) {
	var sub domain.BountySubmission

	submitter, err := s.directory.BoundIdentity(ctx, p.User)
	if err != nil {
		return sub, err
	}
	if p.Envelope.Signer != submitter {
		return sub, fmt.Errorf("%w: envelope signed by %s, user is bound to %s",
			domain.ErrForbidden, p.Envelope.Signer, submitter)
	}
	canonical, err := p.Envelope.CanonicalBytes()
	if err != nil {
		return sub, err
	}
	if err := s.verifier.Verify(ctx, submitter, canonical, p.Envelope.Signature); err != nil {
		return sub, fmt.Errorf("%w: signature rejected: %v", domain.ErrForbidden, err)
	}

	b, err := s.db.GetBounty(ctx, p.BountyID)
	if err != nil {
		return sub, err
	}
	if b.Poster == submitter {
		return sub, fmt.Errorf("%w: poster cannot submit to own bounty", domain.ErrForbidden)
	}
	now := s.now().UTC()
	if err := b.AcceptsSubmissions(now); err != nil {
		return sub, err
	}

	sub = domain.BountySubmission{
		ID:           uuid.NewString(),
		BountyID:     b.ID,
		Submitter:    submitter,
		ArtifactHash: p.ArtifactHash,
		ArtifactID:   p.ArtifactID,
		Envelope:     p.Envelope,
		Receipt:      p.Receipt,
		Status:       domain.SubmissionPending,
		CreatedAt:    now,
	}

	if b.ClosureType == domain.ClosureTests {
		return s.autoVerify(ctx, b, sub)
	}

	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.InsertSubmission(ctx, sub); err != nil {
			return err
		}
		return tx.TransitionBounty(ctx, b.ID,
			[]domain.BountyStatus{domain.BountyOpen}, domain.BountyInProgress)
	})
	if err != nil {
		return sub, err
	}
	metrics.BountyTransitions.WithLabelValues(string(domain.BountyInProgress)).Inc()
	s.log.Info("submission received",
		zap.String("bounty", b.ID),
		zap.String("submission", sub.ID),
		zap.String("submitter", string(submitter)))
	return sub, nil
}

// autoVerify decides a Tests-closure submission from its receipt. The
// decision is a pure function of the receipt and the registered harness
// hash, so replaying the same submission always lands the same way.
func (s *Service) autoVerify(ctx context.Context, b domain.Bounty, sub domain.BountySubmission) (domain.BountySubmission, error) {
	if sub.Receipt == nil {
		return sub, fmt.Errorf("%w: tests closure requires an execution receipt", domain.ErrValidation)
	}
	now := s.now().UTC()
	sub.ResolvedAt = &now

	if !sub.Receipt.Matches(b.Closure.HarnessHash) {
		sub.Status = domain.SubmissionRejected
		err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
			return tx.InsertSubmission(ctx, sub)
		})
		if err != nil {
			return sub, err
		}
		metrics.SubmissionsVerified.WithLabelValues("rejected").Inc()
		s.log.Info("submission auto-rejected",
			zap.String("bounty", b.ID),
			zap.String("submission", sub.ID),
			zap.Bool("tests_passed", sub.Receipt.AllTestsPassed))
		return sub, nil
	}

	sub.Status = domain.SubmissionApproved
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.InsertSubmission(ctx, sub); err != nil {
			return err
		}
		return s.settleTx(ctx, tx, b, sub)
	})
	if err != nil {
		return sub, err
	}
	metrics.SubmissionsVerified.WithLabelValues("approved").Inc()
	s.log.Info("submission auto-approved",
		zap.String("bounty", b.ID),
		zap.String("submission", sub.ID),
		zap.String("submitter", string(sub.Submitter)))
	return sub, nil
}

// settleTx completes a bounty in the submitter's favor: every outstanding
// hold releases to the submitter, the bounty closes, and the submitter earns
// completion reputation scaled by the closure weight.
func (s *Service) settleTx(ctx context.Context, tx *sqlite.Tx, b domain.Bounty, sub domain.BountySubmission) error {
	holds, err := tx.ListHeldByBounty(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if err := s.escrow.ReleaseTx(ctx, tx, h.ID, sub.Submitter); err != nil {
			return err
		}
	}
	if err := tx.TransitionBounty(ctx, b.ID,
		[]domain.BountyStatus{domain.BountyOpen, domain.BountyInProgress}, domain.BountyCompleted); err != nil {
		return err
	}
	_, err = s.reputation.CreditTx(ctx, tx, reputation.Change{
		Identity:      sub.Submitter,
		Kind:          domain.RepBountyCompletion,
		Base:          b.Reward.MulRound(s.cfg.CompletionRate),
		ClosureWeight: s.closureWeight(b.ClosureType),
		Reason:        "bounty completion",
		BountyID:      b.ID,
	})
	if err != nil {
		return err
	}
	metrics.BountyTransitions.WithLabelValues(string(domain.BountyCompleted)).Inc()
	return nil
}

// ResolveSubmission manually rules on a pending submission (Quorum and
// Requester closures). Only the poster may rule. Approval settles the bounty
// to the submitter; rejection reopens the bounty for new submissions.
func (s *Service) ResolveSubmission(ctx context.Context, submissionID string, caller domain.Identity, approve bool) (domain.BountySubmission, error) {
	sub, err := s.db.GetSubmission(ctx, submissionID)
	if err != nil {
		return sub, err
	}
	b, err := s.db.GetBounty(ctx, sub.BountyID)
	if err != nil {
		return sub, err
	}
	if b.Poster != caller {
		return sub, fmt.Errorf("%w: only the poster can resolve submissions", domain.ErrForbidden)
	}

	now := s.now().UTC()
	sub.ResolvedAt = &now
	if approve {
		sub.Status = domain.SubmissionApproved
		err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
			if err := tx.ResolveSubmission(ctx, submissionID, domain.SubmissionApproved, now); err != nil {
				return err
			}
			return s.settleTx(ctx, tx, b, sub)
		})
		return sub, err
	}

	sub.Status = domain.SubmissionRejected
	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.ResolveSubmission(ctx, submissionID, domain.SubmissionRejected, now); err != nil {
			return err
		}
		return tx.TransitionBounty(ctx, b.ID,
			[]domain.BountyStatus{domain.BountyInProgress}, domain.BountyOpen)
	})
	if err != nil {
		return sub, err
	}
	metrics.BountyTransitions.WithLabelValues(string(domain.BountyOpen)).Inc()
	return sub, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get fetches one bounty.
func (s *Service) Get(ctx context.Context, id string) (domain.Bounty, error) {
	return s.db.GetBounty(ctx, id)
}

// List returns bounties, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, status domain.BountyStatus, limit int) ([]domain.Bounty, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return s.db.ListBounties(ctx, status, limit)
}

// Submissions returns a bounty's submissions, oldest first.
func (s *Service) Submissions(ctx context.Context, bountyID string) ([]domain.BountySubmission, error) {
	return s.db.ListSubmissionsByBounty(ctx, bountyID)
}

func (s *Service) closureWeight(ct domain.ClosureType) decimal.Decimal {
	if w, ok := s.cfg.ClosureWeights[ct]; ok {
		return w
	}
	return decimal.NewFromInt(1)
}

func seniorOperator(p domain.SpendPolicy) domain.Identity {
	var op domain.Identity
	var highest domain.Amount = -1
	for _, tier := range p.ApprovalTiers {
		if tier.Threshold > highest {
			highest = tier.Threshold
			op = tier.Operator
		}
	}
	return op
}
