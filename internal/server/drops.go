// drops.go - Drop read paths and the clipboard save path.
//
// Every entry point checks expiry before anything else and hard-deletes
// what it finds dead (lazy expiry). The debounced touch runs only after
// that check: touching first could resurrect a drop the same request is
// about to serve.
package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// liveDrop loads a drop for a read path. Absent is errDropNotFound;
// expired drops are hard-deleted and reported as errDropExpired.
func (a *API) liveDrop(r *http.Request, ns Namespace, key string) (*Drop, error) {
	d, err := a.store.GetDrop(r.Context(), ns, key)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errDropNotFound
	}
	if d.IsExpired(a.now()) {
		metrics.lazyExpiries.Add(1)
		if err := hardDelete(r.Context(), a.store, a.blobs, d); err != nil {
			return nil, err
		}
		return nil, errDropExpired
	}
	return d, nil
}

// touch persists the activity timestamp if the debounce window has
// passed. A failed touch must not fail the read; it only delays the next
// timestamp bump.
func (a *API) touch(r *http.Request, d *Drop) {
	now := a.now()
	if !shouldTouch(d.LastAccessedAt, now) {
		return
	}
	if err := a.store.Touch(r.Context(), d.ID, now); err != nil {
		rid := RequestIDFromContext(r.Context())
		log.Printf("rid=%s msg=touch_failed ns=%s key=%s err=%v", rid, d.NS, d.Key, err)
		return
	}
	// Mirror the update on the snapshot so the response counts this read.
	d.LastAccessedAt = now
	d.ViewCount++
}

// ViewHandler serves drop metadata and, for clipboard drops, the content.
// GET /{key}/ and GET /f/{key}/
func (a *API) ViewHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		d, err := a.liveDrop(r, ns, key)
		if err != nil {
			writeError(w, r, err)
			return
		}

		acct := a.currentAccount(r)
		if err := a.gatePassword(w, r, d, acct); err != nil {
			writeError(w, r, err)
			return
		}

		a.touch(r, d)

		resp := map[string]any{
			"key":        d.Key,
			"ns":         d.NS,
			"kind":       d.Kind,
			"created_at": d.CreatedAt.Format(time.RFC3339),
			"view_count": d.ViewCount,
		}
		if !d.LastAccessedAt.IsZero() {
			resp["last_accessed_at"] = d.LastAccessedAt.Format(time.RFC3339)
		}
		if !d.ExpiresAt.IsZero() {
			resp["expires_at"] = d.ExpiresAt.Format(time.RFC3339)
			resp["renewals"] = d.RenewalCount
		}
		if d.Kind == KindText {
			resp["content"] = d.Content
		} else {
			resp["filename"] = d.Filename
			resp["filesize"] = d.FileSizeBytes
			resp["download"] = "/f/" + d.Key + "/download/"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// DownloadHandler redirects to a fresh presigned GET URL. The application
// tier never proxies file bytes. GET /f/{key}/download/
func (a *API) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	d, err := a.liveDrop(r, NSFile, key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	acct := a.currentAccount(r)
	if err := a.gatePassword(w, r, d, acct); err != nil {
		writeError(w, r, err)
		return
	}

	a.touch(r, d)

	url, err := a.blobs.PresignedGet(r.Context(), d.NS, d.Key, d.Filename, presignTTL, d.StorageObjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	metrics.downloads.Add(1)
	http.Redirect(w, r, url, http.StatusFound)
}

// SaveHandler creates or updates a clipboard drop from a form post.
// POST /save/
func (a *API) SaveHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, errBadRequest("invalid form"))
		return
	}

	acct := a.currentAccount(r)
	content := r.PostFormValue("content")

	if int64(len(content)) > planOf(acct).Limits().MaxTextBytes {
		writeError(w, r, &apiError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "text exceeds plan size limit",
		})
		return
	}

	key := strings.TrimSpace(r.PostFormValue("key"))
	if key == "" {
		generated, err := genKey(r.Context(), a.store, NSClipboard)
		if err != nil {
			writeError(w, r, err)
			return
		}
		key = generated
	} else if !validKey(key) {
		writeError(w, r, errBadRequest("invalid or reserved key"))
		return
	}

	existing, err := a.existingForWrite(r, NSClipboard, key)
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
		if err := a.store.UpdateTextPayload(r.Context(), existing.ID, content); err != nil {
			writeError(w, r, err)
			return
		}
		drop = existing
	} else {
		expiryDays, _ := strconv.Atoi(r.PostFormValue("expiry_days"))
		expiresAt, lockedUntil := a.expiryAndLock(acct, expiryDays)

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
			ID:          uuid.New(),
			NS:          NSClipboard,
			Key:         key,
			Kind:        KindText,
			Content:     content,
			Owner:       owner,
			CreatedAt:   a.now(),
			ExpiresAt:   expiresAt,
			MaxLifetime: clipboardMaxLifetime(planOf(acct)),
			Locked:      acct != nil && acct.Plan.Paid(),
			LockedUntil: lockedUntil,
		}
		if err := a.store.InsertDrop(r.Context(), drop); err != nil {
			writeError(w, r, err)
			return
		}
		if mintedAnon != "" {
			setAnonCookie(w, mintedAnon)
		}
	}

	metrics.textSaves.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{
		"key":  drop.Key,
		"ns":   drop.NS,
		"kind": drop.Kind,
		"url":  "/" + drop.Key + "/",
		"new":  existing == nil,
	})
}

// CheckKeyHandler answers whether a key is free in a namespace.
// GET /check/?ns=c&key=report
func (a *API) CheckKeyHandler(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	ns := Namespace(r.URL.Query().Get("ns"))
	if ns == "" {
		ns = NSClipboard
	}
	if key == "" {
		writeError(w, r, errBadRequest("key required"))
		return
	}
	if !ns.Valid() {
		writeError(w, r, errBadRequest("invalid ns"))
		return
	}
	if reservedKeys[key] || !validKey(key) {
		writeJSON(w, http.StatusOK, map[string]any{
			"available": false, "reserved": true, "ns": ns, "key": key,
		})
		return
	}

	taken, err := a.store.KeyTaken(r.Context(), ns, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": !taken, "ns": ns, "key": key,
	})
}
