package postgres

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/fluentia/fluentia/internal/domain"
)

// newTestStore connects to FLUENTIA_TEST_POSTGRES_DSN, skipping when unset.
// Each test uses fresh user ids so runs against a shared database don't collide.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FLUENTIA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLUENTIA_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func freshUser() string { return "pg-test-" + uuid.NewString() }

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"message fallback", errors.New(`ERROR: duplicate key value violates unique constraint "x"`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := mapError(errors.New("duplicate key value"))
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("mapError() = %v, want ErrConflict", err)
	}
}

func TestMapError_DeadlockIsNotConflict(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := mapError(&pgconn.PgError{Code: code, Message: "deadlock detected"})
		if errors.Is(err, domain.ErrConflict) {
			t.Errorf("mapError(%s) = %v, must not be ErrConflict", code, err)
		}
	}
}

func TestInsertAwardRecord_ConcurrentDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := freshUser()

	var inserted atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, ok, err := s.InsertAwardRecord(ctx, domain.AwardRecord{
				ID: uuid.NewString(), UserID: user, DedupeKey: "grammar:race",
				Source: "grammar", XPAwarded: 10, CreatedAt: time.Now(),
			})
			if ok {
				inserted.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent insert: %v", err)
	}
	if n := inserted.Load(); n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}
}

func TestIncrementXP_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := freshUser()

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := s.IncrementXP(ctx, user, 7, func(int64) int { return 1 })
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent increment: %v", err)
	}

	got, err := s.GetXPTotal(ctx, user)
	if err != nil {
		t.Fatalf("GetXPTotal() error: %v", err)
	}
	if got.XPTotal != 70 {
		t.Errorf("XPTotal = %d, want 70", got.XPTotal)
	}
}

func TestStreakAndBadges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := freshUser()

	day := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	if err := s.PutStreak(ctx, domain.StreakRecord{UserID: user, CurrentStreak: 2, BestStreak: 2, LastActivityDate: day}); err != nil {
		t.Fatalf("PutStreak() error: %v", err)
	}
	rec, err := s.GetStreak(ctx, user)
	if err != nil || rec == nil {
		t.Fatalf("GetStreak() = %v, %v", rec, err)
	}
	if !rec.LastActivityDate.Equal(day) {
		t.Errorf("LastActivityDate = %v, want %v", rec.LastActivityDate, day)
	}

	ub := domain.UserBadge{UserID: user, BadgeID: "first-steps", AwardedAt: time.Now()}
	first, _ := s.InsertUserBadge(ctx, ub)
	second, _ := s.InsertUserBadge(ctx, ub)
	if !first || second {
		t.Errorf("inserted = (%v, %v), want (true, false)", first, second)
	}
}

func TestMarkNotificationShown_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkNotificationShown(context.Background(), freshUser(), -1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MarkNotificationShown() = %v, want ErrNotFound", err)
	}
}
