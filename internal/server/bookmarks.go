// bookmarks.go - Saved drop references for registered accounts.
//
// A bookmark implies nothing about ownership; the referenced drop may be
// anyone's and may expire out from under it.
package server

import (
	"encoding/json"
	"net/http"
)

type bookmarkReq struct {
	NS  Namespace `json:"ns"`
	Key string    `json:"key"`
}

// AddBookmarkHandler saves a (ns, key) for the session account.
// POST /bookmarks/
func (a *API) AddBookmarkHandler(w http.ResponseWriter, r *http.Request) {
	acct := a.currentAccount(r)
	if acct == nil {
		writeError(w, r, errUnauthorized)
		return
	}

	var req bookmarkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadRequest("invalid JSON"))
		return
	}
	if req.Key == "" || !req.NS.Valid() {
		writeError(w, r, errBadRequest("key and valid ns required"))
		return
	}

	if err := a.store.AddBookmark(r.Context(), acct.ID, req.NS, req.Key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"saved": true})
}

// ListBookmarksHandler returns the account's bookmarks, newest first.
// GET /bookmarks/
func (a *API) ListBookmarksHandler(w http.ResponseWriter, r *http.Request) {
	acct := a.currentAccount(r)
	if acct == nil {
		writeError(w, r, errUnauthorized)
		return
	}

	marks, err := a.store.ListBookmarks(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(marks))
	for _, b := range marks {
		out = append(out, map[string]any{
			"ns":       b.NS,
			"key":      b.Key,
			"saved_at": b.SavedAt,
			"url":      "/" + b.NS.URLPrefix() + b.Key + "/",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": out})
}

// RemoveBookmarkHandler deletes a bookmark; removing one that is already
// gone is success. DELETE /bookmarks/{ns}/{key}/
func (a *API) RemoveBookmarkHandler(w http.ResponseWriter, r *http.Request) {
	acct := a.currentAccount(r)
	if acct == nil {
		writeError(w, r, errUnauthorized)
		return
	}

	ns := Namespace(r.PathValue("ns"))
	key := r.PathValue("key")
	if !ns.Valid() || key == "" {
		writeError(w, r, errBadRequest("key and valid ns required"))
		return
	}

	if err := a.store.RemoveBookmark(r.Context(), acct.ID, ns, key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}
