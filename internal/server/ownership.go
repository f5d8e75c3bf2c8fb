// ownership.go - Who may mutate a drop.
package server

import "time"

// CanEdit reports whether the actor may mutate the drop. Anonymous drops
// are editable by anyone; owned drops only by their owner. The creation
// lock is checked separately because it vetoes everyone, owner included.
func (d *Drop) CanEdit(actor *Account) bool {
	if d.Owner.Anonymous() {
		return true
	}
	if actor == nil {
		return false
	}
	return d.Owner.Is(actor.ID)
}

// editDenied returns the error to surface when a mutation is refused, or
// nil when it is allowed. The two denial shapes differ on purpose: a
// creation lock means "wait", an owner lock means "give up".
func editDenied(d *Drop, actor *Account, now time.Time) error {
	if d.CreationLocked(now) {
		return errCreationLock
	}
	if !d.CanEdit(actor) {
		return errLockedToOwner
	}
	return nil
}

// isOwner reports whether actor is the drop's owning account.
func isOwner(d *Drop, actor *Account) bool {
	return actor != nil && d.Owner.Is(actor.ID)
}
