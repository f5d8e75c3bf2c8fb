package server

import "time"

// Expiry and access-tracking constants. The idle ceilings apply only when
// no explicit deadline or lifetime cap fires first.
const (
	// clipboardIdleTTL is how long a clipboard drop survives without
	// being read.
	clipboardIdleTTL = 24 * time.Hour

	// fileIdleTTL is how long a file drop survives without being read.
	// Measured from the activity timestamp (last access, falling back to
	// creation), not from creation.
	fileIdleTTL = 90 * 24 * time.Hour

	// touchDebounce bounds write amplification on hot drops: reads inside
	// the window cost no database write.
	touchDebounce = 5 * time.Minute

	// creationLockWindow protects a freshly created anonymous drop from
	// being overwritten under its sharer's feet.
	creationLockWindow = 24 * time.Hour
)

// IsExpired decides whether the drop is dead at the given instant.
// First match wins:
//
//  1. explicit deadline passed
//  2. total lifetime cap exceeded
//  3. idle ceiling exceeded, measured from last access (or creation if
//     the drop was never read)
//
// Every rule compares now against a timestamp that only the debounced
// touch can move forward, so for a fixed drop state the answer is
// monotonic: once expired, always expired. Callers must re-check before
// touching, never after.
func (d *Drop) IsExpired(now time.Time) bool {
	if !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt) {
		return true
	}
	if d.MaxLifetime > 0 && now.Sub(d.CreatedAt) > d.MaxLifetime {
		return true
	}
	activity := d.LastAccessedAt
	if activity.IsZero() {
		activity = d.CreatedAt
	}
	idle := fileIdleTTL
	if d.NS == NSClipboard {
		idle = clipboardIdleTTL
	}
	return now.Sub(activity) > idle
}

// CreationLocked reports whether the post-creation protection window is
// still active. While it is, nobody may mutate the drop, the owner
// included.
func (d *Drop) CreationLocked(now time.Time) bool {
	return !d.LockedUntil.IsZero() && now.Before(d.LockedUntil)
}

// shouldTouch decides whether a read at now warrants persisting a new
// activity timestamp. The first read always does; later reads only once
// the debounce window has passed.
func shouldTouch(lastAccessed, now time.Time) bool {
	if lastAccessed.IsZero() {
		return true
	}
	return now.Sub(lastAccessed) > touchDebounce
}
