package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.
// Callers match them with errors.Is; detail is carried by %w wrapping.

var (
	// ErrInvalidArgument marks malformed input: negative XP, an unparseable
	// date, a missing dedupe key. Nothing is applied when it is returned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a referenced user, notification, or badge that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate award or badge insert. It is translated
	// into the "already completed" / "no new badge" path and never returned
	// from Award.
	ErrConflict = errors.New("conflict")

	// ErrStorage marks an unreachable store or a rejected, otherwise-valid operation.
	ErrStorage = errors.New("storage failure")
)

// Kind returns the taxonomy name for err, used by the transport layer.
// ErrStorage wins over any sentinel wrapped beneath it.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorage):
		return "storage_failure"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "storage_failure"
	}
}
