package engagement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluentia/fluentia/internal/domain"
)

// LedgerResult reports whether the award was new. Record is the stored
// entry: the one just written, or the one that was already there.
type LedgerResult struct {
	Inserted bool
	Record   domain.AwardRecord
}

// Ledger grants each (user, dedupe key) at most once.
// The store's unique insert is the only synchronization point.
type Ledger struct {
	store domain.ProgressStore
	now   func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store domain.ProgressStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// ValidateDedupeKey checks the "<source>:<content_slug>" shape.
func ValidateDedupeKey(key string) error {
	source, slug, ok := strings.Cut(key, ":")
	if !ok || source == "" || slug == "" {
		return fmt.Errorf("%w: dedupe_key %q must look like <source>:<slug>", domain.ErrInvalidArgument, key)
	}
	return nil
}

// TryRecordAward inserts rec unless an award with the same key exists.
// ID and CreatedAt are filled in when empty.
func (l *Ledger) TryRecordAward(ctx context.Context, rec domain.AwardRecord) (LedgerResult, error) {
	if rec.UserID == "" {
		return LedgerResult{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidArgument)
	}
	if err := ValidateDedupeKey(rec.DedupeKey); err != nil {
		return LedgerResult{}, err
	}
	if rec.XPAwarded < 0 {
		return LedgerResult{}, fmt.Errorf("%w: xp_awarded must be >= 0, got %d", domain.ErrInvalidArgument, rec.XPAwarded)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}

	stored, inserted, err := l.store.InsertAwardRecord(ctx, rec)
	if err != nil {
		return LedgerResult{}, fmt.Errorf("%w: record award %s: %w", domain.ErrStorage, rec.DedupeKey, err)
	}
	return LedgerResult{Inserted: inserted, Record: stored}, nil
}
