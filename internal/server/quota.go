// quota.go - Per-account storage usage reporting.
package server

import "net/http"

// QuotaHandler returns the session account's storage ledger and caps.
// GET /quota
//
// Returns JSON:
//
//	{
//	  "plan": "starter",
//	  "storage_used_bytes": 123456789,
//	  "storage_quota_bytes": 5368709120
//	}
//
// A quota of 0 means the plan has no cap.
func (a *API) QuotaHandler(w http.ResponseWriter, r *http.Request) {
	acct := a.currentAccount(r)
	if acct == nil {
		writeError(w, r, errUnauthorized)
		return
	}

	limits := acct.Plan.Limits()
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":                acct.Plan,
		"storage_used_bytes":  acct.StorageUsedBytes,
		"storage_quota_bytes": limits.StorageQuotaBytes,
		"max_file_bytes":      limits.MaxFileBytes,
		"max_text_bytes":      limits.MaxTextBytes,
	})
}
