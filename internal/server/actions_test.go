package server

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDelete_Idempotent(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	api := newTestAPI(store, blobs)

	d := fileDrop("doomed", 256)
	store.put(d)
	blobs.objects[d.StorageObjectID] = 256

	del := func() int {
		w := doRequest(api.DeleteHandler(NSFile), pathReq("DELETE", "/f/doomed/delete/", "doomed"))
		return w.Code
	}

	if code := del(); code != http.StatusOK {
		t.Fatalf("first delete status = %d, want 200", code)
	}
	if len(store.drops) != 0 {
		t.Error("row must be gone")
	}
	if len(blobs.deletes) != 1 {
		t.Errorf("object deletes = %d, want 1", len(blobs.deletes))
	}

	// Retried delete of a now-missing drop still answers success.
	if code := del(); code != http.StatusOK {
		t.Errorf("second delete status = %d, want 200", code)
	}
}

func TestDelete_DecrementsOwnerLedger(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	api := newTestAPI(store, blobs)

	acct := addAccount(t, store, "ivan", PlanStarter)
	store.accounts[acct.ID].StorageUsedBytes = 4096

	d := fileDrop("mine", 4096)
	d.Owner = AccountOwner(acct.ID)
	store.put(d)
	blobs.objects[d.StorageObjectID] = 4096

	r := pathReq("DELETE", "/f/mine/delete/", "mine")
	asAccount(t, api, r, acct)
	w := doRequest(api.DeleteHandler(NSFile), r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := store.accounts[acct.ID].StorageUsedBytes; got != 0 {
		t.Errorf("ledger = %d, want 0", got)
	}
}

func TestDelete_TextDropTouchesNoLedgerOrBlob(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	api := newTestAPI(store, blobs)

	store.put(textDrop("memo", "x"))

	w := doRequest(api.DeleteHandler(NSClipboard), pathReq("DELETE", "/memo/delete/", "memo"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(blobs.deletes) != 0 {
		t.Error("text delete must not touch the blob store")
	}
	if len(store.adjustments) != 0 {
		t.Error("text delete must not touch the ledger")
	}
}

func TestDelete_OwnedDropRefusedForStranger(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())

	owner := addAccount(t, store, "judy", PlanFree)
	d := textDrop("hers", "x")
	d.Owner = AccountOwner(owner.ID)
	store.put(d)

	w := doRequest(api.DeleteHandler(NSClipboard), pathReq("DELETE", "/hers/delete/", "hers"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(store.drops) != 1 {
		t.Error("drop must survive")
	}
}

func TestRename(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())
	store.put(textDrop("old", "x"))

	r := pathReq("POST", "/old/rename/", "old")
	r.PostForm = url.Values{"new_key": {"new"}}
	w := doRequest(api.RenameHandler(NSClipboard), r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if _, ok := store.drops[dropKey(NSClipboard, "new")]; !ok {
		t.Error("drop not reachable under new key")
	}
	if _, ok := store.drops[dropKey(NSClipboard, "old")]; ok {
		t.Error("drop still reachable under old key")
	}
}

func TestRename_TargetTaken(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())
	store.put(textDrop("a", "1"))
	store.put(textDrop("b", "2"))

	r := pathReq("POST", "/a/rename/", "a")
	r.PostForm = url.Values{"new_key": {"b"}}
	w := doRequest(api.RenameHandler(NSClipboard), r)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestRename_BadKeys(t *testing.T) {
	tests := []struct {
		name   string
		newKey string
	}{
		{"empty", ""},
		{"same as current", "old"},
		{"reserved", "upload"},
		{"illegal characters", "a b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			api := newTestAPI(store, newFakeBlobs())
			store.put(textDrop("old", "x"))

			r := pathReq("POST", "/old/rename/", "old")
			r.PostForm = url.Values{"new_key": {tt.newKey}}
			if w := doRequest(api.RenameHandler(NSClipboard), r); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestRenew(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())

	owner := addAccount(t, store, "kate", PlanStarter)
	d := fileDrop("paper", 100)
	d.Owner = AccountOwner(owner.ID)
	d.CreatedAt = t0.Add(-10 * 24 * time.Hour)
	d.ExpiresAt = t0.Add(20 * 24 * time.Hour) // original duration: 30 days
	store.put(d)

	r := pathReq("POST", "/f/paper/renew/", "paper")
	asAccount(t, api, r, owner)
	w := doRequest(api.RenewHandler(NSFile), r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	want := t0.Add(30 * 24 * time.Hour)
	got := store.drops[dropKey(NSFile, "paper")]
	if !got.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want now + original duration = %v", got.ExpiresAt, want)
	}
	if got.RenewalCount != 1 {
		t.Errorf("RenewalCount = %d, want 1", got.RenewalCount)
	}
}

func TestRenew_NoExplicitExpiry(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())

	owner := addAccount(t, store, "leo", PlanStarter)
	d := fileDrop("plain", 100)
	d.Owner = AccountOwner(owner.ID)
	store.put(d)

	r := pathReq("POST", "/f/plain/renew/", "plain")
	asAccount(t, api, r, owner)
	if w := doRequest(api.RenewHandler(NSFile), r); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRenew_NonOwnerRefused(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())

	owner := addAccount(t, store, "mia", PlanStarter)
	stranger := addAccount(t, store, "ned", PlanStarter)
	d := fileDrop("paper", 100)
	d.Owner = AccountOwner(owner.ID)
	d.ExpiresAt = t0.Add(24 * time.Hour)
	store.put(d)

	r := pathReq("POST", "/f/paper/renew/", "paper")
	asAccount(t, api, r, stranger)
	if w := doRequest(api.RenewHandler(NSFile), r); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestCopy_FileIsDuplicatedServerSide(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	api := newTestAPI(store, blobs)

	acct := addAccount(t, store, "olga", PlanStarter)
	d := fileDrop("orig", 1024)
	store.put(d)
	blobs.objects[d.StorageObjectID] = 1024

	r := jsonReq("POST", "/f/orig/copy/", `{"new_key":"dup"}`)
	r.SetPathValue("key", "orig")
	asAccount(t, api, r, acct)
	w := doRequest(api.CopyHandler(NSFile), r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	cp := store.drops[dropKey(NSFile, "dup")]
	if cp == nil {
		t.Fatal("copy not created")
	}
	if cp.FileSizeBytes != 1024 || cp.Filename != d.Filename {
		t.Errorf("copy payload mismatch: %+v", cp)
	}
	if len(blobs.copies) != 1 {
		t.Errorf("server-side copies = %d, want 1", len(blobs.copies))
	}
	if got := store.accounts[acct.ID].StorageUsedBytes; got != 1024 {
		t.Errorf("ledger = %d, want copy billed to the copier", got)
	}
	if ownerID, ok := cp.Owner.Account(); !ok || ownerID != acct.ID {
		t.Error("copy must belong to the copier, not the source owner")
	}
}

func TestCopy_TargetTaken(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())
	store.put(textDrop("a", "1"))
	store.put(textDrop("b", "2"))

	r := jsonReq("POST", "/a/copy/", `{"new_key":"b"}`)
	r.SetPathValue("key", "a")
	if w := doRequest(api.CopyHandler(NSClipboard), r); w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestCopy_QuotaEnforced(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	api := newTestAPI(store, blobs)

	acct := addAccount(t, store, "pete", PlanStarter)
	store.accounts[acct.ID].StorageUsedBytes = 5 << 30

	d := fileDrop("orig", 1024)
	store.put(d)
	blobs.objects[d.StorageObjectID] = 1024

	r := jsonReq("POST", "/f/orig/copy/", `{"new_key":"dup"}`)
	r.SetPathValue("key", "orig")
	asAccount(t, api, r, acct)
	if w := doRequest(api.CopyHandler(NSFile), r); w.Code != http.StatusInsufficientStorage {
		t.Fatalf("status = %d, want 507", w.Code)
	}
	if len(blobs.copies) != 0 {
		t.Error("no object may be copied over quota")
	}
}

func TestSetPassword_PlanGated(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())

	free := addAccount(t, store, "quinn", PlanFree)
	d := textDrop("memo", "x")
	d.Owner = AccountOwner(free.ID)
	store.put(d)

	r := pathReq("POST", "/memo/set-password/", "memo")
	r.PostForm = url.Values{"new_password": {"hunter22"}}
	asAccount(t, api, r, free)
	if w := doRequest(api.SetPasswordHandler(NSClipboard), r); w.Code != http.StatusForbidden {
		t.Fatalf("free plan status = %d, want 403", w.Code)
	}
}

func TestSetPassword_SetAndClear(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())

	owner := addAccount(t, store, "rosa", PlanPro)
	d := textDrop("memo", "x")
	d.Owner = AccountOwner(owner.ID)
	store.put(d)

	r := pathReq("POST", "/memo/set-password/", "memo")
	r.PostForm = url.Values{"new_password": {"hunter22"}}
	asAccount(t, api, r, owner)
	if w := doRequest(api.SetPasswordHandler(NSClipboard), r); w.Code != http.StatusOK {
		t.Fatalf("set status = %d, want 200", w.Code)
	}
	stored := store.drops[dropKey(NSClipboard, "memo")]
	if !stored.HasPassword() || !checkPassword(stored.PasswordHash, "hunter22") {
		t.Fatal("password not stored as a verifiable hash")
	}

	r = pathReq("POST", "/memo/set-password/", "memo")
	r.PostForm = url.Values{"new_password": {""}}
	asAccount(t, api, r, owner)
	if w := doRequest(api.SetPasswordHandler(NSClipboard), r); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", w.Code)
	}
	if store.drops[dropKey(NSClipboard, "memo")].HasPassword() {
		t.Error("empty password must clear protection")
	}
}

func TestCreationLockBlocksEveryEditor(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, newFakeBlobs())
	addAccount(t, store, "sven", PlanPro)

	d := textDrop("locked", "x")
	d.Owner = TokenOwner("tok")
	d.LockedUntil = t0.Add(12 * time.Hour)
	store.put(d)

	r := pathReq("POST", "/locked/rename/", "locked")
	r.PostForm = url.Values{"new_key": {"elsewhere"}}
	w := doRequest(api.RenameHandler(NSClipboard), r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != errCreationLock.Message {
		t.Errorf("error = %v, want the creation-lock message", body["error"])
	}
}

func TestEditDenied(t *testing.T) {
	ownerID := uuid.New()
	owner := &Account{ID: ownerID, Plan: PlanStarter}
	stranger := &Account{ID: uuid.New(), Plan: PlanStarter}

	tests := []struct {
		name  string
		drop  *Drop
		actor *Account
		want  error
	}{
		{"anonymous drop, anonymous actor", &Drop{Owner: AnonymousOwner()}, nil, nil},
		{"anonymous drop, any account", &Drop{Owner: AnonymousOwner()}, stranger, nil},
		{"owned drop, owner", &Drop{Owner: AccountOwner(ownerID)}, owner, nil},
		{"owned drop, stranger", &Drop{Owner: AccountOwner(ownerID)}, stranger, errLockedToOwner},
		{"owned drop, anonymous actor", &Drop{Owner: AccountOwner(ownerID)}, nil, errLockedToOwner},
		{"token drop, any account", &Drop{Owner: TokenOwner("tok")}, stranger, nil},
		{
			"creation lock vetoes even the owner",
			&Drop{Owner: AccountOwner(ownerID), LockedUntil: t0.Add(time.Hour)},
			owner,
			errCreationLock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := editDenied(tt.drop, tt.actor, t0); got != tt.want {
				t.Errorf("editDenied() = %v, want %v", got, tt.want)
			}
		})
	}
}
