package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scrip-network/scrip/internal/domain"
)

func testNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

func TestDebitSpendable_DrawsPromoLast(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreditBalance(ctx, "alice", domain.Credits(4)); err != nil {
			return err
		}
		return tx.CreditPromo(ctx, "alice", domain.Credits(6), domain.Credits(100))
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	// 7 credits: 4 from balance, 3 from promo.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.DebitSpendable(ctx, "alice", domain.Credits(7))
	}); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	acct, _ := db.GetAccount(ctx, "alice")
	if acct.Balance != 0 {
		t.Errorf("balance = %s, want 0", acct.Balance)
	}
	if acct.PromoBalance != domain.Credits(3) {
		t.Errorf("promo balance = %s, want 3.00000000", acct.PromoBalance)
	}
}

func TestDebitSpendable_InsufficientCombined(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreditBalance(ctx, "alice", domain.Credits(2)); err != nil {
			return err
		}
		return tx.CreditPromo(ctx, "alice", domain.Credits(1), domain.Credits(100))
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.DebitSpendable(ctx, "alice", domain.Credits(4))
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	// Nothing moved.
	acct, _ := db.GetAccount(ctx, "alice")
	if acct.Spendable() != domain.Credits(3) {
		t.Errorf("spendable = %s, want 3.00000000", acct.Spendable())
	}
}

func TestDebitSpendable_UnknownIdentity(t *testing.T) {
	db := newTestDB(t)
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		return tx.DebitSpendable(context.Background(), "ghost", domain.Credits(1))
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}
}

func TestCreditPromo_LifetimeCap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lifetimeCap := domain.Credits(10)
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreditPromo(ctx, "alice", domain.Credits(7), lifetimeCap)
	}); err != nil {
		t.Fatalf("first promo grant failed: %v", err)
	}

	// Second grant would push lifetime to 12 > 10.
	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreditPromo(ctx, "alice", domain.Credits(5), lifetimeCap)
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	// Spending promo does not reset the lifetime counter.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.DebitSpendable(ctx, "alice", domain.Credits(7))
	}); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreditPromo(ctx, "alice", domain.Credits(5), lifetimeCap)
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("post-spend grant error = %v, want ErrValidation", err)
	}

	// An exact top-up to the cap is allowed.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreditPromo(ctx, "alice", domain.Credits(3), lifetimeCap)
	}); err != nil {
		t.Fatalf("grant to exactly the cap failed: %v", err)
	}
}

func TestLedgerEntries_RoundTripAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entries := []domain.LedgerEntry{
		{ID: uuid.NewString(), Kind: domain.EntryMint, To: "alice", Amount: domain.Credits(10), CreatedAt: testNow()},
		{ID: uuid.NewString(), Kind: domain.EntryTransfer, From: "alice", To: "bob", Amount: domain.Credits(4), Metadata: "rent", CreatedAt: testNow().Add(time.Second)},
		{ID: uuid.NewString(), Kind: domain.EntryBurn, From: "alice", Amount: domain.Credits(1), CreatedAt: testNow().Add(2 * time.Second)},
	}
	if err := db.WithTx(ctx, func(tx *Tx) error {
		for _, e := range entries {
			if err := tx.InsertLedgerEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("inserting entries: %v", err)
	}

	got, err := db.ListLedgerEntries(ctx, "alice", 50)
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("ledger entries mismatch (-want +got):\n%s", diff)
	}

	// bob only sees the transfer.
	got, _ = db.ListLedgerEntries(ctx, "bob", 50)
	if len(got) != 1 || got[0].Kind != domain.EntryTransfer {
		t.Errorf("bob's entries = %+v, want one transfer", got)
	}
}

func TestReconcileBalances_ReportsDrift(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Balanced account: mint 10, record the fact, credit the projection.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
			ID: uuid.NewString(), Kind: domain.EntryMint, To: "alice",
			Amount: domain.Credits(10), CreatedAt: testNow(),
		}); err != nil {
			return err
		}
		return tx.CreditBalance(ctx, "alice", domain.Credits(10))
	}); err != nil {
		t.Fatalf("seeding alice: %v", err)
	}

	// Drifted account: projection credited without a ledger fact.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreditBalance(ctx, "mallory", domain.Credits(5))
	}); err != nil {
		t.Fatalf("seeding mallory: %v", err)
	}

	drifts, err := db.ReconcileBalances(ctx)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	byIdentity := map[domain.Identity]LedgerDrift{}
	for _, d := range drifts {
		byIdentity[d.Identity] = d
	}
	if d := byIdentity["alice"]; d.Drift() != 0 {
		t.Errorf("alice drift = %d, want 0", d.Drift())
	}
	if d := byIdentity["mallory"]; d.Drift() != -int64(domain.Credits(5)) {
		t.Errorf("mallory drift = %d, want %d", d.Drift(), -int64(domain.Credits(5)))
	}
}

// ─── Escrow ─────────────────────────────────────────────────────────────────

func TestCloseEscrowHold_TerminalIsFinal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	hold := domain.EscrowHold{
		ID:        uuid.NewString(),
		BountyID:  uuid.NewString(),
		Holder:    "alice",
		Amount:    domain.Credits(10),
		Status:    domain.HoldHeld,
		CreatedAt: testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertEscrowHold(ctx, hold)
	}); err != nil {
		t.Fatalf("inserting hold: %v", err)
	}

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.CloseEscrowHold(ctx, hold.ID, domain.HoldReleased, testNow())
	}); err != nil {
		t.Fatalf("releasing hold: %v", err)
	}

	// Cancelling a released hold must fail, and vice versa.
	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.CloseEscrowHold(ctx, hold.ID, domain.HoldCancelled, testNow())
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}

	got, _ := db.GetEscrowHold(ctx, hold.ID)
	if got.Status != domain.HoldReleased {
		t.Errorf("status = %s, want RELEASED", got.Status)
	}
	if got.ReleasedAt == nil {
		t.Error("released_at not recorded")
	}
}

func TestCloseEscrowHold_Missing(t *testing.T) {
	db := newTestDB(t)
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		return tx.CloseEscrowHold(context.Background(), "nope", domain.HoldReleased, testNow())
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

// ─── Bounty ─────────────────────────────────────────────────────────────────

func TestTransitionBounty_Guards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := domain.Bounty{
		ID:          uuid.NewString(),
		Poster:      "alice",
		Title:       "fix the flaky scheduler test",
		Reward:      domain.Credits(100),
		ClosureType: domain.ClosureRequester,
		Status:      domain.BountyOpen,
		CreatedAt:   testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertBounty(ctx, b)
	}); err != nil {
		t.Fatalf("inserting bounty: %v", err)
	}

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.TransitionBounty(ctx, b.ID, []domain.BountyStatus{domain.BountyOpen}, domain.BountyInProgress)
	}); err != nil {
		t.Fatalf("open -> in_progress failed: %v", err)
	}

	// Open is no longer a valid source.
	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.TransitionBounty(ctx, b.ID, []domain.BountyStatus{domain.BountyOpen}, domain.BountyCancelled)
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}

	// Multi-source transitions accept any listed status.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.TransitionBounty(ctx, b.ID,
			[]domain.BountyStatus{domain.BountyOpen, domain.BountyInProgress}, domain.BountyCancelled)
	}); err != nil {
		t.Fatalf("in_progress -> cancelled failed: %v", err)
	}

	got, _ := db.GetBounty(ctx, b.ID)
	if got.Status != domain.BountyCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestBounty_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	deadline := testNow().Add(72 * time.Hour)
	want := domain.Bounty{
		ID:          uuid.NewString(),
		Poster:      "alice",
		Title:       "port the importer",
		Description: "see the tracking issue",
		Reward:      domain.Credits(250),
		ClosureType: domain.ClosureQuorum,
		Closure: domain.ClosureMetadata{
			ReviewerCount:  3,
			MinReviewerRep: domain.Credits(50),
		},
		Status:    domain.BountyPendingApproval,
		Deadline:  &deadline,
		CreatedAt: testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertBounty(ctx, want)
	}); err != nil {
		t.Fatalf("inserting bounty: %v", err)
	}

	got, err := db.GetBounty(ctx, want.ID)
	if err != nil {
		t.Fatalf("getting bounty: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bounty mismatch (-want +got):\n%s", diff)
	}
}

func TestListBounties_FilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, status := range []domain.BountyStatus{domain.BountyOpen, domain.BountyCancelled, domain.BountyOpen} {
		b := domain.Bounty{
			ID:          uuid.NewString(),
			Poster:      "alice",
			Title:       "job",
			Reward:      domain.Credits(int64(10 * (i + 1))),
			ClosureType: domain.ClosureRequester,
			Status:      status,
			CreatedAt:   testNow(),
		}
		if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertBounty(ctx, b) }); err != nil {
			t.Fatalf("inserting bounty %d: %v", i, err)
		}
	}

	open, err := db.ListBounties(ctx, domain.BountyOpen, 10)
	if err != nil {
		t.Fatalf("listing open bounties: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open bounties = %d, want 2", len(open))
	}
	// Newest first.
	if open[0].Reward != domain.Credits(30) {
		t.Errorf("first listed reward = %s, want 30.00000000", open[0].Reward)
	}

	all, _ := db.ListBounties(ctx, "", 10)
	if len(all) != 3 {
		t.Errorf("unfiltered bounties = %d, want 3", len(all))
	}
}

func TestSubmission_ResolveGuards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sub := domain.BountySubmission{
		ID:           uuid.NewString(),
		BountyID:     uuid.NewString(),
		Submitter:    "bob",
		ArtifactHash: "sha256:abc",
		Envelope: domain.SignedEnvelope{
			Signer:    "bob",
			Payload:   []byte(`{"artifact_hash":"sha256:abc"}`),
			Signature: "sig",
		},
		Receipt:   &domain.ExecutionReceipt{HarnessHash: "sha256:harness", AllTestsPassed: true},
		Status:    domain.SubmissionPending,
		CreatedAt: testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertSubmission(ctx, sub) }); err != nil {
		t.Fatalf("inserting submission: %v", err)
	}

	got, err := db.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("getting submission: %v", err)
	}
	if diff := cmp.Diff(sub, got); diff != "" {
		t.Errorf("submission mismatch (-want +got):\n%s", diff)
	}

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.ResolveSubmission(ctx, sub.ID, domain.SubmissionApproved, testNow())
	}); err != nil {
		t.Fatalf("resolving submission: %v", err)
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.ResolveSubmission(ctx, sub.ID, domain.SubmissionRejected, testNow())
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double resolve error = %v, want ErrInvalidState", err)
	}

	// An approved submission can still be overturned by a dispute ruling.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.OverturnSubmission(ctx, sub.ID, testNow())
	}); err != nil {
		t.Fatalf("overturning submission: %v", err)
	}
	got, _ = db.GetSubmission(ctx, sub.ID)
	if got.Status != domain.SubmissionRejected {
		t.Errorf("status after overturn = %s, want REJECTED", got.Status)
	}
}

// ─── Approval ───────────────────────────────────────────────────────────────

func TestApprovalRequest_ResolveOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	req := domain.ApprovalRequest{
		ID:        uuid.NewString(),
		Operator:  "operator",
		Requester: "alice",
		Action:    domain.ActionSpend,
		Amount:    domain.Credits(500),
		BountyID:  uuid.NewString(),
		Status:    domain.ApprovalPending,
		ExpiresAt: testNow().Add(72 * time.Hour),
		CreatedAt: testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertApprovalRequest(ctx, req) }); err != nil {
		t.Fatalf("inserting request: %v", err)
	}

	pending, err := db.ListApprovalRequests(ctx, "operator", domain.ApprovalPending, 10)
	if err != nil {
		t.Fatalf("listing requests: %v", err)
	}
	if len(pending) != 1 || pending[0].Amount != domain.Credits(500) {
		t.Fatalf("pending = %+v, want the inserted request", pending)
	}

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalApproved, "looks fine")
	}); err != nil {
		t.Fatalf("approving: %v", err)
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalRejected, "changed my mind")
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double resolve error = %v, want ErrInvalidState", err)
	}
}

// ─── Dispute ────────────────────────────────────────────────────────────────

func TestInsertDispute_OnePendingPerSubmission(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	submissionID := uuid.NewString()
	mk := func(initiator domain.Identity) domain.Dispute {
		return domain.Dispute{
			ID:            uuid.NewString(),
			BountyID:      uuid.NewString(),
			SubmissionID:  submissionID,
			Initiator:     initiator,
			Reason:        "receipt looks forged",
			StakeAmount:   domain.Credits(10),
			StakeEscrowID: uuid.NewString(),
			Status:        domain.DisputePending,
			Deadline:      testNow().Add(7 * 24 * time.Hour),
			CreatedAt:     testNow(),
		}
	}

	first := mk("alice")
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertDispute(ctx, first) }); err != nil {
		t.Fatalf("first dispute: %v", err)
	}

	// A second live dispute against the same submission violates the
	// partial unique index.
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertDispute(ctx, mk("carol")) }); err == nil {
		t.Fatal("second pending dispute for the same submission should fail")
	}

	// Once the first resolves, a new challenge is allowed again.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.RecordDisputeRuling(ctx, first.ID, domain.OutcomeRejectSubmission, "arbiter")
	}); err != nil {
		t.Fatalf("resolving first dispute: %v", err)
	}
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertDispute(ctx, mk("carol")) }); err != nil {
		t.Fatalf("dispute after resolution: %v", err)
	}
}

func TestRecordDisputeRuling_Guards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := domain.Dispute{
		ID:            uuid.NewString(),
		BountyID:      uuid.NewString(),
		SubmissionID:  uuid.NewString(),
		Initiator:     "alice",
		StakeAmount:   domain.Credits(10),
		StakeEscrowID: uuid.NewString(),
		Status:        domain.DisputePending,
		Deadline:      testNow().Add(24 * time.Hour),
		CreatedAt:     testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertDispute(ctx, d) }); err != nil {
		t.Fatalf("inserting dispute: %v", err)
	}

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.RecordDisputeRuling(ctx, d.ID, domain.OutcomeUpholdSubmission, "arbiter")
	}); err != nil {
		t.Fatalf("ruling failed: %v", err)
	}

	got, _ := db.GetDispute(ctx, d.ID)
	if got.Status != domain.DisputeResolved || got.Outcome == nil || *got.Outcome != domain.OutcomeUpholdSubmission {
		t.Errorf("dispute after ruling = %+v", got)
	}
	if got.Resolver != "arbiter" {
		t.Errorf("resolver = %s, want arbiter", got.Resolver)
	}

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.RecordDisputeRuling(ctx, d.ID, domain.OutcomeRejectSubmission, "other")
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second ruling error = %v, want ErrInvalidState", err)
	}

	err = db.WithTx(ctx, func(tx *Tx) error { return tx.ExpireDispute(ctx, d.ID) })
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expiring resolved dispute error = %v, want ErrInvalidState", err)
	}
}

// ─── Reputation ─────────────────────────────────────────────────────────────

func TestReputationTotal_ClampedAtZero(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.AddReputationTotal(ctx, "bob", int64(domain.Credits(5)), testNow())
	}); err != nil {
		t.Fatalf("crediting reputation: %v", err)
	}

	// A penalty larger than the total clamps at zero, never below.
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.AddReputationTotal(ctx, "bob", -int64(domain.Credits(20)), testNow())
	}); err != nil {
		t.Fatalf("penalizing reputation: %v", err)
	}

	total, _, found, err := db.GetReputationTotal(ctx, "bob")
	if err != nil {
		t.Fatalf("getting total: %v", err)
	}
	if !found || total != 0 {
		t.Errorf("total = %d (found=%v), want 0 found", total, found)
	}
}

func TestReputationEvents_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	e := domain.ReputationEvent{
		ID:             uuid.NewString(),
		Identity:       "bob",
		Kind:           domain.RepBountyCompletion,
		Base:           domain.Credits(10),
		ClosureWeight:  decimal.NewFromFloat(1.5),
		ReviewerWeight: decimal.NewFromInt(1),
		Weighted:       int64(domain.Credits(15)),
		BountyID:       uuid.NewString(),
		CreatedAt:      testNow(),
	}
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertReputationEvent(ctx, e) }); err != nil {
		t.Fatalf("inserting event: %v", err)
	}

	events, err := db.ListReputationEvents(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	got := events[0]
	if got.Kind != e.Kind || got.Weighted != e.Weighted || !got.ClosureWeight.Equal(e.ClosureWeight) {
		t.Errorf("event mismatch: got %+v, want %+v", got, e)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestSetReputationTotal_OverwritesDecayAnchor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.AddReputationTotal(ctx, "bob", int64(domain.Credits(100)), testNow())
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	anchor := testNow().Add(60 * 24 * time.Hour)
	if err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.SetReputationTotal(ctx, "bob", int64(domain.Credits(98)), anchor, anchor)
	}); err != nil {
		t.Fatalf("setting total: %v", err)
	}

	total, lastDecay, found, _ := db.GetReputationTotal(ctx, "bob")
	if !found || total != int64(domain.Credits(98)) {
		t.Errorf("total = %d, want %d", total, int64(domain.Credits(98)))
	}
	if !lastDecay.Equal(anchor) {
		t.Errorf("decay anchor = %v, want %v", lastDecay, anchor)
	}
}
