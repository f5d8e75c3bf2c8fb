// errors.go - Request error taxonomy and JSON response helpers.
//
// Every user-visible failure maps to exactly one HTTP status. Handlers
// return these through writeError so the wire shape stays uniform.
package server

import (
	"encoding/json"
	"log"
	"net/http"
)

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

func errBadRequest(msg string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Message: msg}
}

var (
	errDropNotFound  = &apiError{Status: http.StatusNotFound, Message: "drop not found"}
	errObjectMissing = &apiError{Status: http.StatusNotFound, Message: "file not found in storage; upload may have failed or expired"}
	errDropExpired   = &apiError{Status: http.StatusGone, Message: "drop has expired"}
	errPasswordReq   = &apiError{Status: http.StatusUnauthorized, Message: "password required"}
	errLockedToOwner = &apiError{Status: http.StatusForbidden, Message: "drop is locked to its owner"}
	errCreationLock  = &apiError{Status: http.StatusForbidden, Message: "drop is protected for 24 hours after creation"}
	errOwnerOnly     = &apiError{Status: http.StatusForbidden, Message: "only the owner may do this"}
	errPaidOnly      = &apiError{Status: http.StatusForbidden, Message: "this feature requires a paid plan"}
	errKeyTaken      = &apiError{Status: http.StatusConflict, Message: "key already taken"}
	errTooLarge      = &apiError{Status: http.StatusRequestEntityTooLarge, Message: "file exceeds plan size limit"}
	errQuotaExceeded = &apiError{Status: http.StatusInsufficientStorage, Message: "storage quota exceeded"}
	errMethod        = &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	errUnauthorized  = &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as a JSON error body. Unrecognized errors become
// opaque 500s; the detail goes to the log, not the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := err.(*apiError); ok {
		writeJSON(w, ae.Status, map[string]string{"error": ae.Message})
		return
	}
	rid := RequestIDFromContext(r.Context())
	log.Printf("rid=%s msg=internal_error err=%v", rid, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
