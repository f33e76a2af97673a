package engagement

import (
	"context"
	"fmt"

	"github.com/fluentia/fluentia/internal/domain"
	"github.com/fluentia/fluentia/internal/infra/metrics"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// Reconciler re-reads the ledger and reports users whose XP total does not
// match the sum of their award records. It never repairs anything.
//
// An award between its ledger insert and its increment shows up as a
// discrepancy until the increment commits.
type Reconciler struct {
	store domain.ProgressStore
	log   *logger.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store domain.ProgressStore, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{store: store, log: log.With("service", "reconcile")}
}

// Scan returns every out-of-balance user, ordered by user ID.
func (r *Reconciler) Scan(ctx context.Context) ([]domain.XPDiscrepancy, error) {
	found, err := r.store.LedgerDiscrepancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: scan ledger: %w", domain.ErrStorage, err)
	}
	metrics.ReconcileDiscrepancies.Set(float64(len(found)))
	for _, d := range found {
		r.log.Warn("xp total out of balance",
			"user_id", d.UserID, "ledger_xp", d.LedgerXP, "total_xp", d.TotalXP)
	}
	return found, nil
}

// Run performs one scan and logs the outcome. Used as a scheduled job.
func (r *Reconciler) Run(ctx context.Context) {
	found, err := r.Scan(ctx)
	if err != nil {
		r.log.Error("reconcile failed", "error", err)
		return
	}
	r.log.Info("reconcile complete", "discrepancies", len(found))
}
