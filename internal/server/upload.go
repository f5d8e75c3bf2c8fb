// upload.go - Two-phase direct upload: prepare issues a presigned PUT,
// confirm verifies the object landed and creates the drop row.
//
// The split exists so file bytes never cross the application tier (the
// gateway's request timeout cannot carry large uploads). Prepare's size
// and quota checks are UX only; the binding check runs at confirm against
// the size the backend reports, which closes the gap between what the
// client declared and what it actually uploaded.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type prepareReq struct {
	Key         string    `json:"key"`
	NS          Namespace `json:"ns"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
}

type confirmReq struct {
	Key        string    `json:"key"`
	NS         Namespace `json:"ns"`
	Filename   string    `json:"filename"`
	ExpiryDays int       `json:"expiry_days,omitempty"`
}

// expiryAndLock derives the creation-time expiry fields. Paid accounts
// may set an explicit deadline bounded by their plan; anonymous creations
// instead get the 24h creation lock.
func (a *API) expiryAndLock(acct *Account, expiryDays int) (expiresAt, lockedUntil time.Time) {
	now := a.now()
	if acct != nil && acct.Plan.Paid() {
		if expiryDays > 0 {
			if max := acct.Plan.Limits().MaxExpiryDays; expiryDays > max {
				expiryDays = max
			}
			expiresAt = now.Add(time.Duration(expiryDays) * 24 * time.Hour)
		}
	} else if acct == nil {
		lockedUntil = now.Add(creationLockWindow)
	}
	return expiresAt, lockedUntil
}

// existingForWrite loads the drop occupying (ns, key) for an overwrite
// attempt. Expired occupants are hard-deleted on the spot and reported as
// absent.
func (a *API) existingForWrite(r *http.Request, ns Namespace, key string) (*Drop, error) {
	d, err := a.store.GetDrop(r.Context(), ns, key)
	if err != nil || d == nil {
		return nil, err
	}
	if d.IsExpired(a.now()) {
		metrics.lazyExpiries.Add(1)
		if err := hardDelete(r.Context(), a.store, a.blobs, d); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return d, nil
}

// PrepareHandler validates the declared upload and hands back a presigned
// PUT URL. POST /upload/prepare
func (a *API) PrepareHandler(w http.ResponseWriter, r *http.Request) {
	var req prepareReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadRequest("invalid JSON"))
		return
	}
	if req.NS == "" {
		req.NS = NSFile
	}
	if !req.NS.Valid() {
		writeError(w, r, errBadRequest("invalid ns"))
		return
	}

	acct := a.currentAccount(r)

	if req.Key == "" {
		writeError(w, r, errBadRequest("key required"))
		return
	}
	if !validKey(req.Key) {
		writeError(w, r, errBadRequest("invalid or reserved key"))
		return
	}

	if req.Size <= 0 {
		writeError(w, r, errBadRequest("size required"))
		return
	}
	if req.Size > planOf(acct).Limits().MaxFileBytes {
		writeError(w, r, errTooLarge)
		return
	}
	// Advisory only; confirm re-checks against the backend's truth.
	if !withinQuota(acct, req.Size) {
		writeError(w, r, errQuotaExceeded)
		return
	}

	existing, err := a.existingForWrite(r, req.NS, req.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		if err := editDenied(existing, acct, a.now()); err != nil {
			writeError(w, r, err)
			return
		}
	}

	url, err := a.blobs.PresignedPut(r.Context(), req.NS, req.Key, req.ContentType, req.Size, presignTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	metrics.prepares.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{
		"presigned_url": url,
		"key":           req.Key,
		"ns":            req.NS,
		"expires_in":    int(presignTTL / time.Second),
	})
}

// ConfirmHandler runs after the client PUT the bytes straight to the
// backend. It re-derives the size from the backend and re-checks quota
// with it; only then does a drop row exist. POST /upload/confirm
func (a *API) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	var req confirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadRequest("invalid JSON"))
		return
	}
	if req.NS == "" {
		req.NS = NSFile
	}
	if req.Key == "" || !req.NS.Valid() {
		writeError(w, r, errBadRequest("key and valid ns required"))
		return
	}
	if req.Filename == "" {
		req.Filename = req.Key
	}

	acct := a.currentAccount(r)

	// Guards a client that confirms without having uploaded.
	exists, err := a.blobs.Exists(r.Context(), req.NS, req.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !exists {
		writeError(w, r, errObjectMissing)
		return
	}

	// The backend's word on the size, never the client's.
	size, err := a.blobs.SizeOf(r.Context(), req.NS, req.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !withinQuota(acct, size) {
		// The object is already orphaned; remove it and leave no trace
		// in either the drops table or the ledger.
		a.blobs.Delete(r.Context(), req.NS, req.Key, "")
		writeError(w, r, errQuotaExceeded)
		return
	}

	existing, err := a.existingForWrite(r, req.NS, req.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var drop *Drop
	if existing != nil {
		if err := editDenied(existing, acct, a.now()); err != nil {
			writeError(w, r, err)
			return
		}
		oldSize := existing.FileSizeBytes
		objectID := a.blobs.ObjectKey(req.NS, req.Key)
		if err := a.store.UpdateFilePayload(r.Context(), existing.ID, objectID, req.Filename, size); err != nil {
			writeError(w, r, err)
			return
		}
		if ownerID, ok := existing.Owner.Account(); ok {
			if err := a.store.AdjustStorage(r.Context(), ownerID, size-oldSize); err != nil {
				writeError(w, r, err)
				return
			}
		}
		drop = existing
	} else {
		expiresAt, lockedUntil := a.expiryAndLock(acct, req.ExpiryDays)

		var (
			owner      Owner
			mintedAnon string
		)
		if acct != nil {
			owner = AccountOwner(acct.ID)
		} else {
			token, minted := anonToken(r)
			owner = TokenOwner(token)
			if minted {
				mintedAnon = token
			}
		}

		drop = &Drop{
			ID:              uuid.New(),
			NS:              req.NS,
			Key:             req.Key,
			Kind:            KindFile,
			StorageObjectID: a.blobs.ObjectKey(req.NS, req.Key),
			Filename:        req.Filename,
			FileSizeBytes:   size,
			Owner:           owner,
			CreatedAt:       a.now(),
			ExpiresAt:       expiresAt,
			MaxLifetime:     0, // file drops carry no lifetime cap
			Locked:          acct != nil && acct.Plan.Paid(),
			LockedUntil:     lockedUntil,
		}
		if err := a.store.InsertDrop(r.Context(), drop); err != nil {
			// Racing confirm for the same slot: the constraint decided.
			writeError(w, r, err)
			return
		}
		if acct != nil {
			if err := a.store.AdjustStorage(r.Context(), acct.ID, size); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if mintedAnon != "" {
			setAnonCookie(w, mintedAnon)
		}
	}

	metrics.confirms.Add(1)
	metrics.uploadBytes.Add(size)
	writeJSON(w, http.StatusOK, map[string]any{
		"key":  drop.Key,
		"ns":   drop.NS,
		"kind": drop.Kind,
		"url":  "/" + drop.NS.URLPrefix() + drop.Key + "/",
		"new":  existing == nil,
	})
}
