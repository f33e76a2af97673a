package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestAwardMetrics(t *testing.T) {
	AwardsTotal.WithLabelValues("grammar", OutcomeGranted).Inc()
	XPAwarded.WithLabelValues("grammar").Add(10)
	AwardLatency.Observe(0.004)

	names := gatheredNames(t)
	expected := []string{
		"fluentia_awards_total",
		"fluentia_xp_awarded_total",
		"fluentia_award_latency_seconds",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestBadgeAndReconcileMetrics(t *testing.T) {
	BadgesUnlocked.WithLabelValues("first-steps").Inc()
	ReconcileDiscrepancies.Set(2)
	HealthCheckStatus.WithLabelValues("store").Set(1)

	names := gatheredNames(t)
	expected := []string{
		"fluentia_badges_unlocked_total",
		"fluentia_reconcile_discrepancies",
		"fluentia_health_check_status",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
