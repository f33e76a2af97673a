// Package metrics provides Prometheus metrics for Fluentia.
// Counters and histograms for the award path, badge unlocks,
// reconciliation and health checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Award outcomes.
const (
	OutcomeGranted   = "granted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// ─── Awards ─────────────────────────────────────────────────────────────────

// AwardsTotal counts award requests by source and outcome.
var AwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fluentia",
	Name:      "awards_total",
	Help:      "Award requests by source and outcome.",
}, []string{"source", "outcome"})

// XPAwarded counts XP granted by source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fluentia",
	Name:      "xp_awarded_total",
	Help:      "Total XP granted.",
}, []string{"source"})

// AwardLatency tracks end-to-end award duration in seconds.
var AwardLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "fluentia",
	Name:      "award_latency_seconds",
	Help:      "Award request duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
})

// ─── Badges ─────────────────────────────────────────────────────────────────

// BadgesUnlocked counts badge unlocks by slug.
var BadgesUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fluentia",
	Name:      "badges_unlocked_total",
	Help:      "Total badge unlocks.",
}, []string{"badge"})

// ─── Reconciliation ─────────────────────────────────────────────────────────

// ReconcileDiscrepancies is the number of users found out of balance by the last scan.
var ReconcileDiscrepancies = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "fluentia",
	Name:      "reconcile_discrepancies",
	Help:      "Users whose ledger sum differs from their XP total at the last scan.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus is 1 for a passing check and 0 for a failing one.
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fluentia",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})
