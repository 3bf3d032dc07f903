// Package metrics exposes Prometheus counters and gauges for the settlement
// core. All collectors are registered at package init via promauto and served
// on the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerEntries counts appended ledger entries by kind.
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrip",
		Name:      "ledger_entries_total",
		Help:      "Ledger entries appended, by entry kind.",
	}, []string{"kind"})

	// InsufficientFunds counts rejected deductions.
	InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scrip",
		Name:      "insufficient_funds_total",
		Help:      "Deductions rejected for insufficient spendable balance.",
	})

	// BountyTransitions counts bounty status transitions by target status.
	BountyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrip",
		Name:      "bounty_transitions_total",
		Help:      "Bounty lifecycle transitions, by target status.",
	}, []string{"to"})

	// SubmissionsVerified counts auto-verification outcomes.
	SubmissionsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrip",
		Name:      "submissions_verified_total",
		Help:      "Submission auto-verification outcomes, by result.",
	}, []string{"result"})

	// ApprovalDecisions counts approval request resolutions.
	ApprovalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrip",
		Name:      "approval_decisions_total",
		Help:      "Approval request resolutions, by final status.",
	}, []string{"status"})

	// DisputeOutcomes counts dispute rulings.
	DisputeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrip",
		Name:      "dispute_outcomes_total",
		Help:      "Dispute resolutions, by outcome.",
	}, []string{"outcome"})

	// ReconcileDrift is the absolute ledger drift in base units observed by
	// the most recent reconciliation pass.
	ReconcileDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scrip",
		Name:      "reconcile_drift_base_units",
		Help:      "Absolute balance drift found by the last reconciliation.",
	})

	// ReconcileDriftedAccounts is the number of accounts with nonzero drift
	// in the most recent reconciliation pass.
	ReconcileDriftedAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scrip",
		Name:      "reconcile_drifted_accounts",
		Help:      "Accounts with nonzero drift in the last reconciliation.",
	})
)
