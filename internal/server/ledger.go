// ledger.go - Plan-gated quota check.
//
// This is the advisory half of the quota story; the authoritative half is
// pgStore.AdjustStorage, a single conditional UPDATE. withinQuota reads a
// snapshot and can therefore be stale, which is why confirm re-runs it
// against the backend-reported size before any row is created.
package server

// withinQuota reports whether the actor may add extraBytes of storage.
// Unauthenticated actors and plans without a configured cap always pass.
func withinQuota(acct *Account, extraBytes int64) bool {
	if acct == nil {
		return true
	}
	quota := acct.Plan.Limits().StorageQuotaBytes
	if quota == 0 {
		return true
	}
	return acct.StorageUsedBytes+extraBytes <= quota
}
