// Package api provides the scripd HTTP API: credits, bounties, submissions,
// approvals, disputes, and reputation, plus health and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/app/bounty"
	"github.com/scrip-network/scrip/internal/app/dispute"
	"github.com/scrip-network/scrip/internal/app/ledger"
	"github.com/scrip-network/scrip/internal/app/reputation"
	"github.com/scrip-network/scrip/internal/domain"
)

// Server is the scripd HTTP API server.
type Server struct {
	ledger         *ledger.Service
	bounties       *bounty.Service
	disputes       *dispute.Service
	reputation     *reputation.Service
	log            *zap.Logger
	metricsEnabled bool
}

// NewServer creates the API server.
func NewServer(ldg *ledger.Service, bty *bounty.Service, dsp *dispute.Service,
	rep *reputation.Service, log *zap.Logger) *Server {
	return &Server{
		ledger:     ldg,
		bounties:   bty,
		disputes:   dsp,
		reputation: rep,
		log:        log.Named("api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/credits", func(r chi.Router) {
			r.Post("/mint", s.handleMint)
			r.Post("/promo", s.handlePromoMint)
			r.Post("/redeem", s.handleRedeem)
			r.Post("/transfer", s.handleTransfer)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/balance", s.handleBalance)
			r.Get("/ledger", s.handleLedger)
			r.Get("/reputation", s.handleReputation)
		})

		r.Get("/reconcile", s.handleReconcile)

		r.Route("/bounties", func(r chi.Router) {
			r.Post("/", s.handleCreateBounty)
			r.Get("/", s.handleListBounties)
			r.Get("/{id}", s.handleGetBounty)
			r.Post("/{id}/cancel", s.handleCancelBounty)
			r.Post("/{id}/submissions", s.handleSubmit)
			r.Get("/{id}/submissions", s.handleListSubmissions)
		})

		r.Post("/submissions/{id}/resolve", s.handleResolveSubmission)

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", s.handleListApprovals)
			r.Post("/delegate", s.handleRequestDelegation)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/reject", s.handleReject)
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", s.handleOpenDispute)
			r.Get("/{id}", s.handleGetDispute)
			r.Post("/{id}/resolve", s.handleResolveDispute)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a service error to its HTTP status. Internal failures are
// logged in full and reported opaquely.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidState):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInsufficientFunds):
		status, msg = http.StatusPaymentRequired, err.Error()
	default:
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// decode parses the request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrValidation
	}
	return nil
}
