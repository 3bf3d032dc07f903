package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scrip-network/scrip/internal/app/bounty"
	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Credits ────────────────────────────────────────────────────────────────

type moveCreditsRequest struct {
	From     domain.Identity `json:"from,omitempty"`
	To       domain.Identity `json:"to,omitempty"`
	Amount   domain.Amount   `json:"amount"`
	Metadata string          `json:"metadata,omitempty"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req moveCreditsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.ledger.Mint(r.Context(), req.To, req.Amount, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handlePromoMint(w http.ResponseWriter, r *http.Request) {
	var req moveCreditsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.ledger.PromoMint(r.Context(), req.To, req.Amount, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req moveCreditsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.ledger.Redeem(r.Context(), req.From, req.Amount, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req moveCreditsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.ledger.Transfer(r.Context(), req.From, req.To, req.Amount, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ─── Accounts ───────────────────────────────────────────────────────────────

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity(r.URL.Query().Get("identity"))
	if identity == "" {
		s.writeError(w, r, domain.ErrValidation)
		return
	}
	acct, err := s.ledger.Balance(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity(r.URL.Query().Get("identity"))
	if identity == "" {
		s.writeError(w, r, domain.ErrValidation)
		return
	}
	entries, err := s.ledger.History(r.Context(), identity, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity(r.URL.Query().Get("identity"))
	if identity == "" {
		s.writeError(w, r, domain.ErrValidation)
		return
	}
	score, err := s.reputation.Score(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.reputation.Events(r.Context(), identity, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
		"score":    score,
		"events":   events,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := s.ledger.Reconcile(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balanced": len(drifts) == 0,
		"drifts":   drifts,
	})
}

// ─── Bounties ───────────────────────────────────────────────────────────────

type createBountyRequest struct {
	Poster      domain.Identity        `json:"poster"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Reward      domain.Amount          `json:"reward"`
	ClosureType domain.ClosureType     `json:"closure_type"`
	Closure     domain.ClosureMetadata `json:"closure_metadata,omitempty"`
	Deadline    *time.Time             `json:"deadline,omitempty"`
}

func (s *Server) handleCreateBounty(w http.ResponseWriter, r *http.Request) {
	var req createBountyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, approval, err := s.bounties.Create(r.Context(), bounty.CreateParams{
		Poster:      req.Poster,
		Title:       req.Title,
		Description: req.Description,
		Reward:      req.Reward,
		ClosureType: req.ClosureType,
		Closure:     req.Closure,
		Deadline:    req.Deadline,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]any{"bounty": b}
	if approval != nil {
		resp["approval_request"] = approval
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListBounties(w http.ResponseWriter, r *http.Request) {
	status := domain.BountyStatus(r.URL.Query().Get("status"))
	bounties, err := s.bounties.List(r.Context(), status, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bounties": bounties})
}

func (s *Server) handleGetBounty(w http.ResponseWriter, r *http.Request) {
	b, err := s.bounties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type callerRequest struct {
	Caller domain.Identity `json:"caller"`
}

func (s *Server) handleCancelBounty(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bounties.Cancel(r.Context(), chi.URLParam(r, "id"), req.Caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ─── Submissions ────────────────────────────────────────────────────────────

type submitRequest struct {
	User         string                   `json:"user"`
	ArtifactHash string                   `json:"artifact_hash"`
	ArtifactID   string                   `json:"artifact_id,omitempty"`
	Envelope     domain.SignedEnvelope    `json:"signed_envelope"`
	Receipt      *domain.ExecutionReceipt `json:"execution_receipt,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.bounties.Submit(r.Context(), bounty.SubmitParams{
		BountyID:     chi.URLParam(r, "id"),
		User:         req.User,
		ArtifactHash: req.ArtifactHash,
		ArtifactID:   req.ArtifactID,
		Envelope:     req.Envelope,
		Receipt:      req.Receipt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.bounties.Submissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

type resolveSubmissionRequest struct {
	Caller  domain.Identity `json:"caller"`
	Approve bool            `json:"approve"`
}

func (s *Server) handleResolveSubmission(w http.ResponseWriter, r *http.Request) {
	var req resolveSubmissionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.bounties.ResolveSubmission(r.Context(), chi.URLParam(r, "id"), req.Caller, req.Approve)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ─── Approvals ──────────────────────────────────────────────────────────────

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	operator := domain.Identity(r.URL.Query().Get("operator"))
	if operator == "" {
		s.writeError(w, r, domain.ErrValidation)
		return
	}
	reqs, err := s.bounties.PendingApprovals(r.Context(), operator, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

type delegationRequest struct {
	Requester domain.Identity `json:"requester"`
	Delegate  domain.Identity `json:"delegate"`
}

func (s *Server) handleRequestDelegation(w http.ResponseWriter, r *http.Request) {
	var req delegationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	approval, err := s.bounties.RequestDelegation(r.Context(), req.Requester, req.Delegate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval)
}

type rulingRequest struct {
	Operator domain.Identity `json:"operator"`
	Reason   string          `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, true)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, false)
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	var req rulingRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bounties.ResolveApproval(r.Context(), chi.URLParam(r, "id"), req.Operator, approve, req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ─── Disputes ───────────────────────────────────────────────────────────────

type openDisputeRequest struct {
	SubmissionID string          `json:"submission_id"`
	Initiator    domain.Identity `json:"initiator"`
	Reason       string          `json:"reason"`
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	var req openDisputeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.disputes.Open(r.Context(), req.SubmissionID, req.Initiator, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := s.disputes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type resolveDisputeRequest struct {
	Arbiter domain.Identity       `json:"arbiter"`
	Outcome domain.DisputeOutcome `json:"outcome"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.disputes.Resolve(r.Context(), chi.URLParam(r, "id"), req.Arbiter, req.Outcome); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
