// actions.go - Drop mutations: rename, delete, renew, copy, set-password.
//
// Shared shape: load, expire-if-dead, password gate, ownership/lock
// check, then the action. Delete alone is idempotent all the way down: a
// drop that is already gone still answers success, so retried deletes
// from flaky clients are safe.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// mutableDrop is the common prologue for mutation handlers: 404 when
// absent, 410 (after hard delete) when expired, then the password gate.
func (a *API) mutableDrop(w http.ResponseWriter, r *http.Request, ns Namespace, key string, acct *Account) (*Drop, error) {
	d, err := a.liveDrop(r, ns, key)
	if err != nil {
		return nil, err
	}
	if err := a.gatePassword(w, r, d, acct); err != nil {
		return nil, err
	}
	return d, nil
}

// RenameHandler moves a drop to a new key. The backing object stays at
// its old path; the stored object id keeps pointing at it.
// POST /{prefix}{key}/rename/
func (a *API) RenameHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		acct := a.currentAccount(r)

		d, err := a.mutableDrop(w, r, ns, key, acct)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := editDenied(d, acct, a.now()); err != nil {
			writeError(w, r, err)
			return
		}

		newKey := strings.TrimSpace(r.PostFormValue("new_key"))
		switch {
		case newKey == "":
			writeError(w, r, errBadRequest("new key required"))
			return
		case newKey == key:
			writeError(w, r, errBadRequest("new key is the same as current key"))
			return
		case !validKey(newKey):
			writeError(w, r, errBadRequest("invalid or reserved key"))
			return
		}

		if err := a.store.RenameDrop(r.Context(), d.ID, newKey); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"key": newKey,
			"url": "/" + ns.URLPrefix() + newKey + "/",
		})
	}
}

// DeleteHandler hard-deletes a drop. Missing and already-expired drops
// still answer success. DELETE /{prefix}{key}/delete/
func (a *API) DeleteHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		acct := a.currentAccount(r)

		d, err := a.store.GetDrop(r.Context(), ns, key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if d == nil {
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}
		if d.IsExpired(a.now()) {
			metrics.lazyExpiries.Add(1)
			if err := hardDelete(r.Context(), a.store, a.blobs, d); err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}

		if err := a.gatePassword(w, r, d, acct); err != nil {
			writeError(w, r, err)
			return
		}
		if err := editDenied(d, acct, a.now()); err != nil {
			writeError(w, r, err)
			return
		}

		if err := hardDelete(r.Context(), a.store, a.blobs, d); err != nil {
			writeError(w, r, err)
			return
		}
		metrics.deletes.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

// RenewHandler pushes an explicit expiry forward by the drop's original
// duration. Only drops that carry an explicit expiry can renew; that is
// what makes it a paid feature. POST /{prefix}{key}/renew/
func (a *API) RenewHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		acct := a.currentAccount(r)

		d, err := a.mutableDrop(w, r, ns, key, acct)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !isOwner(d, acct) {
			writeError(w, r, errOwnerOnly)
			return
		}
		if d.ExpiresAt.IsZero() {
			writeError(w, r, errBadRequest("nothing to renew: drop has no explicit expiry"))
			return
		}

		// Reset the clock from now, keeping the original duration.
		duration := d.ExpiresAt.Sub(d.CreatedAt)
		newExpiry := a.now().Add(duration)
		if err := a.store.Renew(r.Context(), d.ID, newExpiry); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"expires_at": newExpiry,
			"renewals":   d.RenewalCount + 1,
		})
	}
}

// CopyHandler duplicates a drop under a new key. File payloads are copied
// server-side in the backend; bytes never cross the application tier.
// POST /{prefix}{key}/copy/
func (a *API) CopyHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		acct := a.currentAccount(r)

		d, err := a.mutableDrop(w, r, ns, key, acct)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req struct {
			NewKey string `json:"new_key"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		newKey := strings.TrimSpace(req.NewKey)
		if newKey == "" {
			generated, err := genKey(r.Context(), a.store, ns)
			if err != nil {
				writeError(w, r, err)
				return
			}
			newKey = generated
		} else if !validKey(newKey) {
			writeError(w, r, errBadRequest("invalid or reserved key"))
			return
		}

		taken, err := a.store.KeyTaken(r.Context(), ns, newKey)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if taken {
			writeError(w, r, errKeyTaken)
			return
		}

		var owner Owner
		if acct != nil {
			owner = AccountOwner(acct.ID)
		} else {
			owner = AnonymousOwner()
		}

		copyDrop := &Drop{
			ID:          uuid.New(),
			NS:          ns,
			Key:         newKey,
			Kind:        d.Kind,
			Owner:       owner,
			CreatedAt:   a.now(),
			ExpiresAt:   d.ExpiresAt,
			MaxLifetime: d.MaxLifetime,
			Locked:      acct != nil && acct.Plan.Paid(),
		}

		if d.Kind == KindText {
			copyDrop.Content = d.Content
		} else {
			if !withinQuota(acct, d.FileSizeBytes) {
				writeError(w, r, errQuotaExceeded)
				return
			}
			srcObjectID := d.StorageObjectID
			if srcObjectID == "" {
				srcObjectID = a.blobs.ObjectKey(ns, key)
			}
			objectID, err := a.blobs.Copy(r.Context(), srcObjectID, ns, newKey)
			if err != nil {
				writeError(w, r, err)
				return
			}
			copyDrop.StorageObjectID = objectID
			copyDrop.Filename = d.Filename
			copyDrop.FileSizeBytes = d.FileSizeBytes
		}

		if err := a.store.InsertDrop(r.Context(), copyDrop); err != nil {
			writeError(w, r, err)
			return
		}
		if acct != nil && copyDrop.Kind == KindFile {
			if err := a.store.AdjustStorage(r.Context(), acct.ID, copyDrop.FileSizeBytes); err != nil {
				writeError(w, r, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"key": copyDrop.Key,
			"url": "/" + ns.URLPrefix() + copyDrop.Key + "/",
		})
	}
}

// SetPasswordHandler sets or clears a drop password. Owner-only, and the
// owner's plan must include the feature. POST /{prefix}{key}/set-password/
func (a *API) SetPasswordHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		acct := a.currentAccount(r)

		d, err := a.liveDrop(r, ns, key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !isOwner(d, acct) {
			writeError(w, r, errOwnerOnly)
			return
		}
		if !acct.Plan.Paid() {
			writeError(w, r, errPaidOnly)
			return
		}

		pw := r.PostFormValue("new_password")
		hash := ""
		if pw != "" {
			hash, err = hashPassword(pw)
			if err != nil {
				writeError(w, r, err)
				return
			}
		}
		if err := a.store.SetDropPassword(r.Context(), d.ID, hash); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"protected": hash != ""})
	}
}
