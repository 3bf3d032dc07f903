package dispute

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/app/bounty"
	"github.com/scrip-network/scrip/internal/app/escrow"
	"github.com/scrip-network/scrip/internal/app/ledger"
	"github.com/scrip-network/scrip/internal/app/reputation"
	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

type okVerifier struct{}

func (okVerifier) Verify(context.Context, domain.Identity, []byte, string) error { return nil }

type oneUserDirectory struct{}

func (oneUserDirectory) BoundIdentity(_ context.Context, user string) (domain.Identity, error) {
	return domain.Identity("did:" + user), nil
}

func (oneUserDirectory) IsBound(_ context.Context, user string, id domain.Identity) (bool, error) {
	return domain.Identity("did:"+user) == id, nil
}

type openPolicy struct{}

func (openPolicy) PolicyFor(context.Context, domain.Identity) (domain.SpendPolicy, error) {
	return domain.SpendPolicy{}, nil
}

type env struct {
	db      *sqlite.DB
	ledger  *ledger.Service
	escrow  *escrow.Service
	rep     *reputation.Service
	bounty  *bounty.Service
	dispute *Service
}

// newSettledEnv seeds a completed 100-credit Tests bounty: alice posted,
// did:bob submitted a passing receipt and was paid.
func newSettledEnv(t *testing.T) (*env, domain.BountySubmission) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "scrip.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	ldg := ledger.New(db, log, domain.Credits(1000))
	esc := escrow.New(db, ldg, log)
	rep := reputation.New(db, log, decimal.NewFromFloat(0.99))
	bty := bounty.New(db, esc, rep, okVerifier{}, oneUserDirectory{}, openPolicy{}, bounty.DefaultConfig(), log)
	dsp := New(db, ldg, esc, rep, DefaultConfig(), log)
	e := &env{db: db, ledger: ldg, escrow: esc, rep: rep, bounty: bty, dispute: dsp}

	ctx := context.Background()
	if _, err := ldg.Mint(ctx, "alice", domain.Credits(150), ""); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	b, _, err := bty.Create(ctx, bounty.CreateParams{
		Poster: "alice", Title: "job", Reward: domain.Credits(100),
		ClosureType: domain.ClosureTests,
		Closure:     domain.ClosureMetadata{HarnessHash: "sha256:harness"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	sub, err := bty.Submit(ctx, bounty.SubmitParams{
		BountyID: b.ID, User: "bob",
		ArtifactHash: "sha256:a",
		Envelope: domain.SignedEnvelope{
			Signer: "did:bob", Payload: []byte(`{}`), Signature: "sig",
		},
		Receipt: &domain.ExecutionReceipt{HarnessHash: "sha256:harness", AllTestsPassed: true},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if sub.Status != domain.SubmissionApproved {
		t.Fatalf("fixture submission status = %s, want APPROVED", sub.Status)
	}
	return e, sub
}

func mintFor(t *testing.T, e *env, id domain.Identity, amount domain.Amount) {
	t.Helper()
	if _, err := e.ledger.Mint(context.Background(), id, amount, ""); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
}

func TestOpen_BondsStake(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "receipt looks forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// Stake is 10% of the 100-credit reward.
	if d.StakeAmount != domain.Credits(10) {
		t.Errorf("stake = %s, want 10.00000000", d.StakeAmount)
	}
	carol, _ := e.ledger.Balance(ctx, "carol")
	if carol.Balance != domain.Credits(10) {
		t.Errorf("initiator balance = %s, want 10.00000000", carol.Balance)
	}

	// Only one live challenge per submission.
	mintFor(t, e, "dave", domain.Credits(20))
	if _, err := e.dispute.Open(ctx, sub.ID, "dave", "me too"); err == nil {
		t.Error("second concurrent dispute should fail")
	}
}

func TestOpen_RequiresStakeFunds(t *testing.T) {
	e, sub := newSettledEnv(t)
	_, err := e.dispute.Open(context.Background(), sub.ID, "pauper", "no money")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}
}

func TestOpen_WindowCloses(t *testing.T) {
	e, sub := newSettledEnv(t)
	mintFor(t, e, "carol", domain.Credits(20))

	e.dispute.now = func() time.Time { return time.Now().UTC().Add(80 * time.Hour) }
	_, err := e.dispute.Open(context.Background(), sub.ID, "carol", "too late")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestResolve_UpholdSlashesStake(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Parties to the dispute cannot arbitrate.
	for _, party := range []domain.Identity{"carol", "did:bob", "alice"} {
		if err := e.dispute.Resolve(ctx, d.ID, party, domain.OutcomeUpholdSubmission); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("arbiter %s error = %v, want ErrForbidden", party, err)
		}
	}

	if err := e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeUpholdSubmission); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// The stake is burned, not returned; the payout stands.
	carol, _ := e.ledger.Balance(ctx, "carol")
	if carol.Balance != domain.Credits(10) {
		t.Errorf("initiator balance = %s, want 10.00000000 (stake gone)", carol.Balance)
	}
	bob, _ := e.ledger.Balance(ctx, "did:bob")
	if bob.Balance != domain.Credits(100) {
		t.Errorf("submitter balance = %s, want 100.00000000", bob.Balance)
	}
	got, _ := e.db.GetSubmission(ctx, sub.ID)
	if got.Status != domain.SubmissionApproved {
		t.Errorf("submission status = %s, want still APPROVED", got.Status)
	}

	// Losing the challenge costs reputation.
	score, _ := e.rep.Score(ctx, "carol")
	if score != 0 {
		t.Errorf("initiator reputation = %s, want 0", score)
	}

	drifted, _ := e.ledger.Reconcile(ctx)
	if len(drifted) != 0 {
		t.Errorf("ledger drift after uphold: %+v", drifted)
	}
}

func TestResolve_RejectClawsBackAndRefundsStake(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeRejectSubmission); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Payout returns to the poster, stake returns to the initiator.
	alice, _ := e.ledger.Balance(ctx, "alice")
	if alice.Balance != domain.Credits(150) {
		t.Errorf("poster balance = %s, want 150.00000000", alice.Balance)
	}
	bob, _ := e.ledger.Balance(ctx, "did:bob")
	if bob.Balance != 0 {
		t.Errorf("submitter balance = %s, want 0", bob.Balance)
	}
	carol, _ := e.ledger.Balance(ctx, "carol")
	if carol.Balance != domain.Credits(20) {
		t.Errorf("initiator balance = %s, want 20.00000000", carol.Balance)
	}

	got, _ := e.db.GetSubmission(ctx, sub.ID)
	if got.Status != domain.SubmissionRejected {
		t.Errorf("submission status = %s, want REJECTED", got.Status)
	}

	// Submitter loses the completion reputation (15 earned, 10 revoked,
	// clamped arithmetic leaves 5); initiator earns a finder's credit.
	bobScore, _ := e.rep.Score(ctx, "did:bob")
	if bobScore != domain.Credits(5) {
		t.Errorf("submitter reputation = %s, want 5.00000000", bobScore)
	}
	carolScore, _ := e.rep.Score(ctx, "carol")
	if carolScore != domain.Credits(10) {
		t.Errorf("initiator reputation = %s, want 10.00000000", carolScore)
	}

	drifted, _ := e.ledger.Reconcile(ctx)
	if len(drifted) != 0 {
		t.Errorf("ledger drift after clawback: %+v", drifted)
	}
}

func TestResolve_RejectKeepsStakeOutOfBountyEscrow(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// The stake is keyed to the same bounty as the payout escrow; the
	// ruling must still see the payout as already released and claw it
	// back by transfer, refunding the stake exactly once.
	if err := e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeRejectSubmission); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	hold, err := e.db.GetEscrowHold(ctx, d.StakeEscrowID)
	if err != nil {
		t.Fatalf("stake hold lookup failed: %v", err)
	}
	if hold.Status != domain.HoldCancelled {
		t.Errorf("stake hold status = %s, want CANCELLED", hold.Status)
	}

	// The clawback is a ledger transfer from the submitter, not an escrow
	// cancellation.
	entries, err := e.ledger.History(ctx, "did:bob", 100)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var clawbacks int
	for _, entry := range entries {
		if entry.Kind == domain.EntryTransfer && entry.From == "did:bob" && entry.To == "alice" {
			clawbacks++
		}
	}
	if clawbacks != 1 {
		t.Errorf("clawback transfers = %d, want exactly 1", clawbacks)
	}
}

func TestResolve_RejectCancelsLeftoverBountyHolds(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	// A manually topped-up hold is still HELD against the bounty when the
	// ruling lands. It refunds to its holder instead of a clawback
	// transfer, and the stake refunds separately.
	extra, err := e.escrow.Open(ctx, sub.BountyID, "alice", domain.Credits(30))
	if err != nil {
		t.Fatalf("extra hold failed: %v", err)
	}

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeRejectSubmission); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	got, _ := e.db.GetEscrowHold(ctx, extra.ID)
	if got.Status != domain.HoldCancelled {
		t.Errorf("extra hold status = %s, want CANCELLED", got.Status)
	}
	alice, _ := e.ledger.Balance(ctx, "alice")
	if alice.Balance != domain.Credits(50) {
		t.Errorf("poster balance = %s, want 50.00000000", alice.Balance)
	}
	bob, _ := e.ledger.Balance(ctx, "did:bob")
	if bob.Balance != domain.Credits(100) {
		t.Errorf("submitter balance = %s, want 100.00000000 (payout untouched)", bob.Balance)
	}
	carol, _ := e.ledger.Balance(ctx, "carol")
	if carol.Balance != domain.Credits(20) {
		t.Errorf("initiator balance = %s, want refunded 20.00000000", carol.Balance)
	}

	drifted, _ := e.ledger.Reconcile(ctx)
	if len(drifted) != 0 {
		t.Errorf("ledger drift after ruling: %+v", drifted)
	}
}

func TestResolve_RejectFailsWhenPayoutSpent(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Submitter drains the payout before the ruling.
	if _, err := e.ledger.Transfer(ctx, "did:bob", "sink", domain.Credits(95), ""); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	err = e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeRejectSubmission)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	// The whole ruling rolled back: dispute still pending, submission
	// still approved, stake still held.
	got, _ := e.db.GetDispute(ctx, d.ID)
	if got.Status != domain.DisputePending {
		t.Errorf("dispute status = %s, want PENDING", got.Status)
	}
	s, _ := e.db.GetSubmission(ctx, sub.ID)
	if s.Status != domain.SubmissionApproved {
		t.Errorf("submission status = %s, want APPROVED", s.Status)
	}
}

func TestResolve_DoubleRulingRejected(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeUpholdSubmission); err != nil {
		t.Fatalf("first ruling failed: %v", err)
	}
	err = e.dispute.Resolve(ctx, d.ID, "judge", domain.OutcomeRejectSubmission)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second ruling error = %v, want ErrInvalidState", err)
	}
}

func TestGet_ExpiresOverdueDisputeAndRefunds(t *testing.T) {
	e, sub := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	start := time.Now().UTC()
	e.dispute.now = func() time.Time { return start }
	d, err := e.dispute.Open(ctx, sub.ID, "carol", "forged")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	e.dispute.now = func() time.Time { return start.Add(8 * 24 * time.Hour) }
	got, err := e.dispute.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.DisputeExpired {
		t.Errorf("status = %s, want EXPIRED", got.Status)
	}
	carol, _ := e.ledger.Balance(ctx, "carol")
	if carol.Balance != domain.Credits(20) {
		t.Errorf("initiator balance = %s, want refunded 20.00000000", carol.Balance)
	}
}

func TestOpen_OnlyApprovedSubmissions(t *testing.T) {
	e, _ := newSettledEnv(t)
	ctx := context.Background()
	mintFor(t, e, "carol", domain.Credits(20))

	_, err := e.dispute.Open(ctx, fmt.Sprintf("missing-%d", time.Now().UnixNano()), "carol", "x")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing submission error = %v, want ErrNotFound", err)
	}
}
