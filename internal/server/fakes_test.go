// fakes_test.go - In-memory Store and BlobStore used by the handler tests.
package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

func dropKey(ns Namespace, key string) string { return string(ns) + "/" + key }

type fakeStore struct {
	drops     map[string]*Drop
	accounts  map[uuid.UUID]*Account
	bookmarks map[uuid.UUID][]Bookmark

	// adjustments records every AdjustStorage call in order.
	adjustments []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		drops:     make(map[string]*Drop),
		accounts:  make(map[uuid.UUID]*Account),
		bookmarks: make(map[uuid.UUID][]Bookmark),
	}
}

func (s *fakeStore) put(d *Drop) { s.drops[dropKey(d.NS, d.Key)] = d }

func (s *fakeStore) GetDrop(_ context.Context, ns Namespace, key string) (*Drop, error) {
	d, ok := s.drops[dropKey(ns, key)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) KeyTaken(_ context.Context, ns Namespace, key string) (bool, error) {
	_, ok := s.drops[dropKey(ns, key)]
	return ok, nil
}

func (s *fakeStore) InsertDrop(_ context.Context, d *Drop) error {
	if _, ok := s.drops[dropKey(d.NS, d.Key)]; ok {
		return errKeyTaken
	}
	cp := *d
	s.drops[dropKey(d.NS, d.Key)] = &cp
	return nil
}

func (s *fakeStore) byID(id uuid.UUID) *Drop {
	for _, d := range s.drops {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *fakeStore) UpdateTextPayload(_ context.Context, id uuid.UUID, content string) error {
	if d := s.byID(id); d != nil {
		d.Content = content
	}
	return nil
}

func (s *fakeStore) UpdateFilePayload(_ context.Context, id uuid.UUID, objectID, filename string, size int64) error {
	if d := s.byID(id); d != nil {
		d.StorageObjectID = objectID
		d.Filename = filename
		d.FileSizeBytes = size
	}
	return nil
}

func (s *fakeStore) RenameDrop(_ context.Context, id uuid.UUID, newKey string) error {
	d := s.byID(id)
	if d == nil {
		return nil
	}
	if _, taken := s.drops[dropKey(d.NS, newKey)]; taken {
		return errKeyTaken
	}
	delete(s.drops, dropKey(d.NS, d.Key))
	d.Key = newKey
	s.drops[dropKey(d.NS, newKey)] = d
	return nil
}

func (s *fakeStore) DeleteDrop(_ context.Context, id uuid.UUID) error {
	if d := s.byID(id); d != nil {
		delete(s.drops, dropKey(d.NS, d.Key))
	}
	return nil
}

func (s *fakeStore) Touch(_ context.Context, id uuid.UUID, now time.Time) error {
	if d := s.byID(id); d != nil {
		d.LastAccessedAt = now
		d.ViewCount++
	}
	return nil
}

func (s *fakeStore) Renew(_ context.Context, id uuid.UUID, newExpiry time.Time) error {
	if d := s.byID(id); d != nil {
		d.ExpiresAt = newExpiry
		d.RenewalCount++
	}
	return nil
}

func (s *fakeStore) SetDropPassword(_ context.Context, id uuid.UUID, hash string) error {
	if d := s.byID(id); d != nil {
		d.PasswordHash = hash
	}
	return nil
}

func (s *fakeStore) ClaimAnonymous(_ context.Context, accountID uuid.UUID, token string) (int64, error) {
	var n int64
	for _, d := range s.drops {
		t, ok := d.Owner.ClaimToken()
		if !ok || t != token {
			continue
		}
		d.Owner = AccountOwner(accountID)
		d.Locked = true
		d.LockedUntil = time.Time{}
		if d.NS == NSClipboard {
			d.MaxLifetime = 30 * 24 * time.Hour
		}
		n++
	}
	return n, nil
}

func (s *fakeStore) ListDropsPage(_ context.Context, afterID uuid.UUID, limit int) ([]*Drop, error) {
	var all []*Drop
	for _, d := range s.drops {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	var page []*Drop
	for _, d := range all {
		if d.ID.String() <= afterID.String() {
			continue
		}
		cp := *d
		page = append(page, &cp)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (s *fakeStore) CreateAccount(_ context.Context, a *Account) error {
	for _, existing := range s.accounts {
		if existing.Username == a.Username {
			return errUsernameTaken
		}
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *fakeStore) AccountByUsername(_ context.Context, username string) (*Account, error) {
	for _, a := range s.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) AccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	if a, ok := s.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) SetAccountPlan(_ context.Context, id uuid.UUID, plan Plan) error {
	if a, ok := s.accounts[id]; ok {
		a.Plan = plan
	}
	return nil
}

func (s *fakeStore) ExtendOwnedDropExpiries(_ context.Context, _ uuid.UUID, _ int) error {
	return nil
}

func (s *fakeStore) AdjustStorage(_ context.Context, accountID uuid.UUID, delta int64) error {
	s.adjustments = append(s.adjustments, delta)
	if a, ok := s.accounts[accountID]; ok {
		a.StorageUsedBytes += delta
		if a.StorageUsedBytes < 0 {
			a.StorageUsedBytes = 0
		}
	}
	return nil
}

func (s *fakeStore) AddBookmark(_ context.Context, accountID uuid.UUID, ns Namespace, key string) error {
	s.bookmarks[accountID] = append(s.bookmarks[accountID], Bookmark{AccountID: accountID, NS: ns, Key: key})
	return nil
}

func (s *fakeStore) RemoveBookmark(_ context.Context, accountID uuid.UUID, ns Namespace, key string) error {
	kept := s.bookmarks[accountID][:0]
	for _, b := range s.bookmarks[accountID] {
		if b.NS != ns || b.Key != key {
			kept = append(kept, b)
		}
	}
	s.bookmarks[accountID] = kept
	return nil
}

func (s *fakeStore) ListBookmarks(_ context.Context, accountID uuid.UUID) ([]Bookmark, error) {
	return s.bookmarks[accountID], nil
}

type fakeBlobs struct {
	objects map[string]int64

	deletes []string
	copies  []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string]int64)}
}

func (b *fakeBlobs) ObjectKey(ns Namespace, key string) string {
	return "drops/" + string(ns) + "/" + key
}

func (b *fakeBlobs) PresignedPut(_ context.Context, ns Namespace, key, _ string, _ int64, _ time.Duration) (string, error) {
	return "http://blobs.test/put/" + b.ObjectKey(ns, key), nil
}

func (b *fakeBlobs) PresignedGet(_ context.Context, ns Namespace, key, _ string, _ time.Duration, explicitObjectID string) (string, error) {
	objectID := explicitObjectID
	if objectID == "" {
		objectID = b.ObjectKey(ns, key)
	}
	return "http://blobs.test/get/" + objectID, nil
}

func (b *fakeBlobs) Exists(_ context.Context, ns Namespace, key string) (bool, error) {
	_, ok := b.objects[b.ObjectKey(ns, key)]
	return ok, nil
}

func (b *fakeBlobs) SizeOf(_ context.Context, ns Namespace, key string) (int64, error) {
	return b.objects[b.ObjectKey(ns, key)], nil
}

func (b *fakeBlobs) Copy(_ context.Context, srcObjectID string, ns Namespace, key string) (string, error) {
	dst := b.ObjectKey(ns, key)
	b.objects[dst] = b.objects[srcObjectID]
	b.copies = append(b.copies, srcObjectID+" -> "+dst)
	return dst, nil
}

func (b *fakeBlobs) Delete(_ context.Context, ns Namespace, key, explicitObjectID string) {
	objectID := explicitObjectID
	if objectID == "" {
		objectID = b.ObjectKey(ns, key)
	}
	b.deletes = append(b.deletes, objectID)
	delete(b.objects, objectID)
}

// newTestAPI wires an API over fakes with a pinned clock.
func newTestAPI(store Store, blobs BlobStore) *API {
	a := NewAPI(store, blobs, []byte("test-secret"))
	a.now = func() time.Time { return t0 }
	return a
}

// addAccount registers an account directly in the fake store.
func addAccount(t *testing.T, s *fakeStore, username string, plan Plan) *Account {
	t.Helper()
	acct := &Account{
		ID:        uuid.New(),
		Username:  username,
		Plan:      plan,
		CreatedAt: t0.Add(-time.Hour),
	}
	if err := s.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acct
}

// asAccount attaches a valid session cookie for acct to the request.
func asAccount(t *testing.T, a *API, r *http.Request, acct *Account) {
	t.Helper()
	token, err := signToken(a.secret, sessionClaims{
		AccountID: acct.ID.String(),
		Exp:       a.now().Add(sessionTTL).Unix(),
	})
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
}

func doRequest(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, r)
	return w
}
