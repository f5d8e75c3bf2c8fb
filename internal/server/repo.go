// repo.go - Persistence for drops, accounts, and bookmarks.
//
// All row mutation that must survive concurrency is a single conditional
// UPDATE at the database, never read-then-write in application code. The
// quota ledger in particular is only ever moved with `used = used + delta`.
package server

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the persistence surface the handlers consume. Kept as an
// interface so orchestration logic is testable against fakes.
type Store interface {
	GetDrop(ctx context.Context, ns Namespace, key string) (*Drop, error)
	KeyTaken(ctx context.Context, ns Namespace, key string) (bool, error)
	InsertDrop(ctx context.Context, d *Drop) error
	UpdateTextPayload(ctx context.Context, id uuid.UUID, content string) error
	UpdateFilePayload(ctx context.Context, id uuid.UUID, objectID, filename string, size int64) error
	RenameDrop(ctx context.Context, id uuid.UUID, newKey string) error
	DeleteDrop(ctx context.Context, id uuid.UUID) error
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	Renew(ctx context.Context, id uuid.UUID, newExpiry time.Time) error
	SetDropPassword(ctx context.Context, id uuid.UUID, hash string) error
	ClaimAnonymous(ctx context.Context, accountID uuid.UUID, token string) (int64, error)
	ListDropsPage(ctx context.Context, afterID uuid.UUID, limit int) ([]*Drop, error)

	CreateAccount(ctx context.Context, a *Account) error
	AccountByUsername(ctx context.Context, username string) (*Account, error)
	AccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	SetAccountPlan(ctx context.Context, id uuid.UUID, plan Plan) error
	ExtendOwnedDropExpiries(ctx context.Context, accountID uuid.UUID, maxDays int) error
	AdjustStorage(ctx context.Context, accountID uuid.UUID, delta int64) error

	AddBookmark(ctx context.Context, accountID uuid.UUID, ns Namespace, key string) error
	RemoveBookmark(ctx context.Context, accountID uuid.UUID, ns Namespace, key string) error
	ListBookmarks(ctx context.Context, accountID uuid.UUID) ([]Bookmark, error)
}

// errUsernameTaken is internal to the store; auth maps it to a response.
var errUsernameTaken = errors.New("username taken")

type pgStore struct {
	db *sql.DB
}

// NewStore wraps a database handle in the Store implementation.
func NewStore(db *sql.DB) Store { return &pgStore{db: db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const dropColumns = `id, ns, key, kind, content, storage_object_id, filename,
	file_size_bytes, owner_id, anon_claim_token, created_at, last_accessed_at,
	expires_at, max_lifetime_secs, locked, locked_until, password_hash,
	renewal_count, view_count`

func scanDrop(row interface{ Scan(...any) error }) (*Drop, error) {
	var (
		d            Drop
		ownerID      uuid.NullUUID
		claimToken   sql.NullString
		lastAccessed sql.NullTime
		expiresAt    sql.NullTime
		lockedUntil  sql.NullTime
		maxLifetime  sql.NullInt64
	)

	err := row.Scan(
		&d.ID, &d.NS, &d.Key, &d.Kind, &d.Content, &d.StorageObjectID,
		&d.Filename, &d.FileSizeBytes, &ownerID, &claimToken, &d.CreatedAt,
		&lastAccessed, &expiresAt, &maxLifetime, &d.Locked, &lockedUntil,
		&d.PasswordHash, &d.RenewalCount, &d.ViewCount,
	)
	if err != nil {
		return nil, err
	}

	switch {
	case ownerID.Valid:
		d.Owner = AccountOwner(ownerID.UUID)
	case claimToken.Valid:
		d.Owner = TokenOwner(claimToken.String)
	default:
		d.Owner = AnonymousOwner()
	}
	if lastAccessed.Valid {
		d.LastAccessedAt = lastAccessed.Time
	}
	if expiresAt.Valid {
		d.ExpiresAt = expiresAt.Time
	}
	if lockedUntil.Valid {
		d.LockedUntil = lockedUntil.Time
	}
	if maxLifetime.Valid {
		d.MaxLifetime = time.Duration(maxLifetime.Int64) * time.Second
	}
	return &d, nil
}

// GetDrop loads one drop. Absent drops return (nil, nil), not an error.
func (s *pgStore) GetDrop(ctx context.Context, ns Namespace, key string) (*Drop, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dropColumns+` FROM drops WHERE ns = $1 AND key = $2`, ns, key)
	d, err := scanDrop(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *pgStore) KeyTaken(ctx context.Context, ns Namespace, key string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM drops WHERE ns = $1 AND key = $2)`, ns, key).Scan(&taken)
	return taken, err
}

// InsertDrop persists a new drop. A concurrent insert of the same
// (ns, key) loses with errKeyTaken; the uniqueness constraint is the
// only backstop for racing confirms.
func (s *pgStore) InsertDrop(ctx context.Context, d *Drop) error {
	var (
		ownerID     uuid.NullUUID
		claimToken  sql.NullString
		expiresAt   sql.NullTime
		lockedUntil sql.NullTime
		maxLifetime sql.NullInt64
	)
	if id, ok := d.Owner.Account(); ok {
		ownerID = uuid.NullUUID{UUID: id, Valid: true}
	}
	if tok, ok := d.Owner.ClaimToken(); ok {
		claimToken = sql.NullString{String: tok, Valid: true}
	}
	if !d.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: d.ExpiresAt, Valid: true}
	}
	if !d.LockedUntil.IsZero() {
		lockedUntil = sql.NullTime{Time: d.LockedUntil, Valid: true}
	}
	if d.MaxLifetime > 0 {
		maxLifetime = sql.NullInt64{Int64: int64(d.MaxLifetime / time.Second), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drops (id, ns, key, kind, content, storage_object_id,
			filename, file_size_bytes, owner_id, anon_claim_token, created_at,
			expires_at, max_lifetime_secs, locked, locked_until, password_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		d.ID, d.NS, d.Key, d.Kind, d.Content, d.StorageObjectID,
		d.Filename, d.FileSizeBytes, ownerID, claimToken, d.CreatedAt,
		expiresAt, maxLifetime, d.Locked, lockedUntil, d.PasswordHash,
	)
	if isUniqueViolation(err) {
		return errKeyTaken
	}
	return err
}

func (s *pgStore) UpdateTextPayload(ctx context.Context, id uuid.UUID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE drops SET content = $2, last_accessed_at = now() WHERE id = $1`, id, content)
	return err
}

func (s *pgStore) UpdateFilePayload(ctx context.Context, id uuid.UUID, objectID, filename string, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE drops SET storage_object_id = $2, filename = $3, file_size_bytes = $4
		WHERE id = $1`, id, objectID, filename, size)
	return err
}

func (s *pgStore) RenameDrop(ctx context.Context, id uuid.UUID, newKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE drops SET key = $2 WHERE id = $1`, id, newKey)
	if isUniqueViolation(err) {
		return errKeyTaken
	}
	return err
}

// DeleteDrop removes the row. Deleting an already-gone drop is success,
// keeping delete idempotent end to end.
func (s *pgStore) DeleteDrop(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drops WHERE id = $1`, id)
	return err
}

// Touch persists the new activity timestamp and bumps the view counter.
// The debounce decision happens in the caller; by the time this runs the
// write is wanted.
func (s *pgStore) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE drops SET last_accessed_at = $2, view_count = view_count + 1
		WHERE id = $1`, id, now)
	return err
}

func (s *pgStore) Renew(ctx context.Context, id uuid.UUID, newExpiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE drops SET expires_at = $2, renewal_count = renewal_count + 1
		WHERE id = $1 AND expires_at IS NOT NULL`, id, newExpiry)
	return err
}

func (s *pgStore) SetDropPassword(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE drops SET password_hash = $2 WHERE id = $1`, id, hash)
	return err
}

// ClaimAnonymous reassigns every drop carrying the token to the account in
// one statement: owner set, token cleared, drop locked, creation lock
// lifted. Clipboard drops get the registered-tier lifetime ceiling; file
// drops keep none.
func (s *pgStore) ClaimAnonymous(ctx context.Context, accountID uuid.UUID, token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE drops
		SET owner_id = $1,
		    anon_claim_token = NULL,
		    locked = TRUE,
		    locked_until = NULL,
		    max_lifetime_secs = CASE WHEN ns = $2 THEN $3::bigint ELSE NULL END
		WHERE anon_claim_token = $4 AND owner_id IS NULL`,
		accountID, NSClipboard, int64(clipboardMaxLifetime(PlanFree)/time.Second), token)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListDropsPage returns drops in id order for the expiry sweep. Pass the
// last id of the previous page to continue; uuid.Nil starts over.
func (s *pgStore) ListDropsPage(ctx context.Context, afterID uuid.UUID, limit int) ([]*Drop, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dropColumns+` FROM drops WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drops []*Drop
	for rows.Next() {
		d, err := scanDrop(rows)
		if err != nil {
			return nil, err
		}
		drops = append(drops, d)
	}
	return drops, rows.Err()
}

// Accounts

func (s *pgStore) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, plan, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Username, a.PasswordHash, a.Plan, a.CreatedAt)
	if isUniqueViolation(err) {
		return errUsernameTaken
	}
	return err
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Plan,
		&a.StorageUsedBytes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *pgStore) AccountByUsername(ctx context.Context, username string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, plan, storage_used_bytes, created_at
		FROM accounts WHERE username = $1`, username))
}

func (s *pgStore) AccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, plan, storage_used_bytes, created_at
		FROM accounts WHERE id = $1`, id))
}

func (s *pgStore) SetAccountPlan(ctx context.Context, id uuid.UUID, plan Plan) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET plan = $2 WHERE id = $1`, id, plan)
	return err
}

// ExtendOwnedDropExpiries pushes explicit expiries out to the new plan's
// ceiling (created_at + maxDays), never shortening one. Called on upgrade.
func (s *pgStore) ExtendOwnedDropExpiries(ctx context.Context, accountID uuid.UUID, maxDays int) error {
	if maxDays <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE drops
		SET expires_at = GREATEST(expires_at, created_at + make_interval(days => $2))
		WHERE owner_id = $1 AND expires_at IS NOT NULL`,
		accountID, maxDays)
	return err
}

// AdjustStorage moves the ledger with one atomic conditional update so
// concurrent uploads and deletes by the same account cannot race each
// other into a wrong total. Negative deltas clamp at zero.
func (s *pgStore) AdjustStorage(ctx context.Context, accountID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET storage_used_bytes = GREATEST(0, storage_used_bytes + $2)
		WHERE id = $1`, accountID, delta)
	return err
}

// Bookmarks

func (s *pgStore) AddBookmark(ctx context.Context, accountID uuid.UUID, ns Namespace, key string) error {
	// Re-saving an existing bookmark is a no-op.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (account_id, ns, key) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, accountID, ns, key)
	return err
}

func (s *pgStore) RemoveBookmark(ctx context.Context, accountID uuid.UUID, ns Namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE account_id = $1 AND ns = $2 AND key = $3`,
		accountID, ns, key)
	return err
}

func (s *pgStore) ListBookmarks(ctx context.Context, accountID uuid.UUID) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, ns, key, saved_at FROM bookmarks
		WHERE account_id = $1 ORDER BY saved_at DESC LIMIT 200`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.AccountID, &b.NS, &b.Key, &b.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
