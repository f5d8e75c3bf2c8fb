package server

import "time"

// API bundles the stores and secrets the handlers close over. The clock
// is injectable for tests; production uses UTC time.Now.
type API struct {
	store  Store
	blobs  BlobStore
	secret []byte
	now    func() time.Time
}

// NewAPI wires the handler set. secret signs session and unlock tokens
// and must be non-empty in production; main enforces that.
func NewAPI(store Store, blobs BlobStore, secret []byte) *API {
	return &API{
		store:  store,
		blobs:  blobs,
		secret: secret,
		now:    func() time.Time { return time.Now().UTC() },
	}
}
