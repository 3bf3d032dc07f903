// Package dispute arbitrates bonded challenges against approved submissions.
// Opening a challenge costs a stake (a second escrow hold, a fixed fraction
// of the bounty reward) so frivolous disputes burn money. The two ruling
// outcomes have mutually exclusive financial effects: upholding the
// submission slashes the stake, rejecting the submission refunds it and
// claws the payout back.
package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/app/escrow"
	"github.com/scrip-network/scrip/internal/app/ledger"
	"github.com/scrip-network/scrip/internal/app/reputation"
	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/metrics"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

// Config tunes dispute economics.
type Config struct {
	// StakeRate is the fraction of the bounty reward bonded by the
	// initiator.
	StakeRate decimal.Decimal
	// Window is how long after a submission resolves a challenge may open.
	Window time.Duration
	// ArbitrationTTL is how long a pending dispute waits for a ruling
	// before it expires and the stake refunds.
	ArbitrationTTL time.Duration
	// ClawbackRate is the fraction of the reward revoked from the
	// submitter's reputation when a submission is overturned.
	ClawbackRate decimal.Decimal
}

// DefaultConfig returns the stock dispute parameters.
func DefaultConfig() Config {
	return Config{
		StakeRate:      decimal.NewFromFloat(0.1),
		Window:         72 * time.Hour,
		ArbitrationTTL: 7 * 24 * time.Hour,
		ClawbackRate:   decimal.NewFromFloat(0.1),
	}
}

// Service opens and resolves disputes.
type Service struct {
	db         *sqlite.DB
	ledger     *ledger.Service
	escrow     *escrow.Service
	reputation *reputation.Service
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

// New creates the dispute service.
func New(db *sqlite.DB, ldg *ledger.Service, esc *escrow.Service, rep *reputation.Service,
	cfg Config, log *zap.Logger) *Service {
	return &Service{
		db:         db,
		ledger:     ldg,
		escrow:     esc,
		reputation: rep,
		cfg:        cfg,
		log:        log.Named("dispute"),
		now:        time.Now,
	}
}

// ─── Open ───────────────────────────────────────────────────────────────────

// Open challenges an approved submission. The initiator bonds a stake
// proportional to the bounty reward; insufficient funds for the stake reject
// the challenge outright. Only one live challenge per submission is allowed,
// and only inside the dispute window after the submission resolved.
func (s *Service) Open(ctx context.Context, submissionID string, initiator domain.Identity, reason string) (domain.Dispute, error) {
	var d domain.Dispute

	sub, err := s.db.GetSubmission(ctx, submissionID)
	if err != nil {
		return d, err
	}
	if sub.Status != domain.SubmissionApproved || sub.ResolvedAt == nil {
		return d, fmt.Errorf("%w: only approved submissions can be disputed", domain.ErrInvalidState)
	}
	if initiator == sub.Submitter {
		return d, fmt.Errorf("%w: submitter cannot dispute own submission", domain.ErrForbidden)
	}
	now := s.now().UTC()
	if now.After(sub.ResolvedAt.Add(s.cfg.Window)) {
		return d, fmt.Errorf("%w: dispute window closed %s after resolution",
			domain.ErrValidation, s.cfg.Window)
	}

	b, err := s.db.GetBounty(ctx, sub.BountyID)
	if err != nil {
		return d, err
	}
	stake := b.Reward.MulRound(s.cfg.StakeRate)
	if stake <= 0 {
		return d, fmt.Errorf("%w: stake rounds to zero", domain.ErrValidation)
	}

	d = domain.Dispute{
		ID:           uuid.NewString(),
		BountyID:     b.ID,
		SubmissionID: submissionID,
		Initiator:    initiator,
		Reason:       reason,
		StakeAmount:  stake,
		Status:       domain.DisputePending,
		Deadline:     now.Add(s.cfg.ArbitrationTTL),
		CreatedAt:    now,
	}
	err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		hold, err := s.escrow.OpenTx(ctx, tx, b.ID, initiator, stake)
		if err != nil {
			return err
		}
		d.StakeEscrowID = hold.ID
		return tx.InsertDispute(ctx, d)
	})
	if err != nil {
		return d, err
	}
	s.log.Info("dispute opened",
		zap.String("dispute", d.ID),
		zap.String("submission", submissionID),
		zap.String("initiator", string(initiator)),
		zap.Stringer("stake", stake))
	return d, nil
}

// ─── Resolve ────────────────────────────────────────────────────────────────

// Resolve rules on a pending dispute. The arbiter must be a disinterested
// party: not the initiator, not the submitter, not the bounty poster. A
// dispute past its arbitration deadline expires instead, refunding the stake.
//
// UpholdSubmission: the challenge fails. The stake is slashed (burned) and
// the initiator takes a reputation penalty. The submission and its payout
// stand untouched.
//
// RejectSubmission: the challenge succeeds. The submission flips to
// rejected, the payout claws back from the submitter to the poster, the
// stake refunds, the submitter loses the reputation the bad submission
// earned, and the initiator earns a finder's credit. The clawback is a
// guarded transfer: if the submitter already spent the payout, the whole
// ruling fails and the dispute stays pending.
func (s *Service) Resolve(ctx context.Context, disputeID string, arbiter domain.Identity, outcome domain.DisputeOutcome) error {
	d, err := s.db.GetDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.Status != domain.DisputePending {
		return fmt.Errorf("%w: dispute is already %s", domain.ErrInvalidState, d.Status)
	}
	sub, err := s.db.GetSubmission(ctx, d.SubmissionID)
	if err != nil {
		return err
	}
	b, err := s.db.GetBounty(ctx, d.BountyID)
	if err != nil {
		return err
	}
	if arbiter == d.Initiator || arbiter == sub.Submitter || arbiter == b.Poster {
		return fmt.Errorf("%w: arbiter must not be a party to the dispute", domain.ErrForbidden)
	}

	now := s.now().UTC()
	if d.PastDeadline(now) {
		if err := s.expire(ctx, d); err != nil {
			return err
		}
		return fmt.Errorf("%w: arbitration deadline passed, dispute expired", domain.ErrInvalidState)
	}

	switch outcome {
	case domain.OutcomeUpholdSubmission:
		err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
			if err := tx.RecordDisputeRuling(ctx, d.ID, outcome, arbiter); err != nil {
				return err
			}
			if err := s.escrow.SlashTx(ctx, tx, d.StakeEscrowID); err != nil {
				return err
			}
			_, err := s.reputation.PenaltyTx(ctx, tx, reputation.Change{
				Identity:  d.Initiator,
				Kind:      domain.RepDisputePenalty,
				Base:      d.StakeAmount,
				Reason:    "dispute rejected by arbiter",
				BountyID:  d.BountyID,
				DisputeID: d.ID,
			})
			return err
		})
	case domain.OutcomeRejectSubmission:
		err = s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
			if err := tx.RecordDisputeRuling(ctx, d.ID, outcome, arbiter); err != nil {
				return err
			}
			if err := tx.OverturnSubmission(ctx, d.SubmissionID, now); err != nil {
				return err
			}
			if err := s.clawBackTx(ctx, tx, b, sub, d.StakeEscrowID); err != nil {
				return err
			}
			if err := s.escrow.CancelTx(ctx, tx, d.StakeEscrowID); err != nil {
				return err
			}
			if _, err := s.reputation.PenaltyTx(ctx, tx, reputation.Change{
				Identity:  sub.Submitter,
				Kind:      domain.RepDisputePenalty,
				Base:      b.Reward.MulRound(s.cfg.ClawbackRate),
				Reason:    "submission overturned",
				BountyID:  d.BountyID,
				DisputeID: d.ID,
			}); err != nil {
				return err
			}
			_, err := s.reputation.CreditTx(ctx, tx, reputation.Change{
				Identity:  d.Initiator,
				Kind:      domain.RepDisputeReward,
				Base:      d.StakeAmount,
				Reason:    "successful challenge",
				BountyID:  d.BountyID,
				DisputeID: d.ID,
			})
			return err
		})
	default:
		return fmt.Errorf("%w: unknown outcome %q", domain.ErrValidation, outcome)
	}
	if err != nil {
		return err
	}

	metrics.DisputeOutcomes.WithLabelValues(string(outcome)).Inc()
	s.log.Info("dispute resolved",
		zap.String("dispute", d.ID),
		zap.String("arbiter", string(arbiter)),
		zap.String("outcome", string(outcome)))
	return nil
}

// clawBackTx returns the payout to the poster. When the bounty escrow is
// somehow still held (manual settlement paths), cancelling the holds refunds
// the poster directly; otherwise the paid-out reward transfers back from the
// submitter, guarded against an already-spent balance. The initiator's stake
// is keyed to the same bounty and must not be touched here; the caller
// refunds it separately.
func (s *Service) clawBackTx(ctx context.Context, tx *sqlite.Tx, b domain.Bounty, sub domain.BountySubmission, stakeEscrowID string) error {
	holds, err := tx.ListHeldByBounty(ctx, b.ID)
	if err != nil {
		return err
	}
	var cancelled int
	for _, h := range holds {
		if h.ID == stakeEscrowID {
			continue
		}
		if err := s.escrow.CancelTx(ctx, tx, h.ID); err != nil {
			return err
		}
		cancelled++
	}
	if cancelled > 0 {
		return nil
	}
	_, err = s.ledger.Append(ctx, tx, domain.LedgerEntry{
		Kind:     domain.EntryTransfer,
		From:     sub.Submitter,
		To:       b.Poster,
		Amount:   b.Reward,
		Metadata: fmt.Sprintf("clawback for overturned submission %s", sub.ID),
	})
	return err
}

// expire persists a lazily observed deadline pass and refunds the stake.
func (s *Service) expire(ctx context.Context, d domain.Dispute) error {
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.ExpireDispute(ctx, d.ID); err != nil {
			return err
		}
		return s.escrow.CancelTx(ctx, tx, d.StakeEscrowID)
	})
	if err != nil {
		return err
	}
	metrics.DisputeOutcomes.WithLabelValues("EXPIRED").Inc()
	s.log.Info("dispute expired", zap.String("dispute", d.ID))
	return nil
}

// Get fetches one dispute, lazily expiring it when the arbitration deadline
// already passed.
func (s *Service) Get(ctx context.Context, disputeID string) (domain.Dispute, error) {
	d, err := s.db.GetDispute(ctx, disputeID)
	if err != nil {
		return d, err
	}
	if d.Status == domain.DisputePending && d.PastDeadline(s.now().UTC()) {
		if err := s.expire(ctx, d); err != nil {
			return d, err
		}
		return s.db.GetDispute(ctx, disputeID)
	}
	return d, nil
}
