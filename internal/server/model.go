package server

import (
	"time"

	"github.com/google/uuid"
)

// Namespace partitions the drop key space. A key is unique only within
// its namespace.
type Namespace string

const (
	NSClipboard Namespace = "c"
	NSFile      Namespace = "f"
)

// Valid reports whether ns is a known namespace.
func (ns Namespace) Valid() bool {
	return ns == NSClipboard || ns == NSFile
}

// URLPrefix returns the path prefix drops in this namespace live under:
// "" for clipboard, "f/" for files.
func (ns Namespace) URLPrefix() string {
	if ns == NSFile {
		return "f/"
	}
	return ""
}

// Kind is the payload representation of a drop. It tracks the namespace in
// practice but is stored separately because a namespace slot is provisioned
// before the kind is known.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Owner is the tri-state ownership of a drop: anonymous, anonymous with a
// pending claim token, or a registered account. Exactly one state holds at
// a time; the token and the account can never coexist.
type Owner struct {
	accountID  uuid.UUID
	hasAccount bool
	claimToken string
}

// AnonymousOwner returns an owner with no account and no claim token.
func AnonymousOwner() Owner { return Owner{} }

// TokenOwner returns an anonymous owner carrying a claim token. An empty
// token collapses to plain anonymous.
func TokenOwner(token string) Owner { return Owner{claimToken: token} }

// AccountOwner returns an owner bound to a registered account.
func AccountOwner(id uuid.UUID) Owner {
	return Owner{accountID: id, hasAccount: true}
}

// Account returns the owning account ID, if any.
func (o Owner) Account() (uuid.UUID, bool) { return o.accountID, o.hasAccount }

// ClaimToken returns the pending claim token, if any.
func (o Owner) ClaimToken() (string, bool) {
	if o.hasAccount || o.claimToken == "" {
		return "", false
	}
	return o.claimToken, true
}

// Anonymous reports whether no account owns the drop.
func (o Owner) Anonymous() bool { return !o.hasAccount }

// Is reports whether the drop is owned by the given account.
func (o Owner) Is(accountID uuid.UUID) bool {
	return o.hasAccount && o.accountID == accountID
}

// Drop is one stored item, text or file, addressed by (namespace, key).
//
// Zero values stand in for absent optionals: a zero ExpiresAt means no
// explicit deadline, a zero LastAccessedAt means never accessed, a zero
// MaxLifetime means no relative cap.
type Drop struct {
	ID   uuid.UUID
	NS   Namespace
	Key  string
	Kind Kind

	// Text payload (clipboard only).
	Content string

	// File payload (file only).
	StorageObjectID string
	Filename        string
	FileSizeBytes   int64

	Owner Owner

	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time
	MaxLifetime    time.Duration

	Locked      bool
	LockedUntil time.Time

	PasswordHash string

	RenewalCount int
	ViewCount    int64
}

// HasPassword reports whether the drop is password-protected.
func (d *Drop) HasPassword() bool { return d.PasswordHash != "" }

// Account is a registered user with a plan and a running storage ledger.
type Account struct {
	ID               uuid.UUID
	Username         string
	PasswordHash     string
	Plan             Plan
	StorageUsedBytes int64
	CreatedAt        time.Time
}

// Bookmark is a saved reference to a drop. It carries no ownership
// implication; the drop may belong to someone else or to nobody.
type Bookmark struct {
	AccountID uuid.UUID
	NS        Namespace
	Key       string
	SavedAt   time.Time
}
