// keys.go - Drop key generation, validation, and the reserved-key list.
package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
)

// reservedKeys are top-level path segments owned by the router. A drop
// under one of these keys would be unreachable, so they are refused at
// creation time. Keep in sync with the mux wiring in server.go.
var reservedKeys = map[string]bool{
	"f":         true,
	"save":      true,
	"check":     true,
	"upload":    true,
	"auth":      true,
	"bookmarks": true,
	"quota":     true,
	"health":    true,
	"metrics":   true,
}

// validKey reports whether key is a usable URL-safe slug.
func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return !reservedKeys[key]
}

// randomToken returns n random bytes as an unpadded URL-safe string.
func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in no state to serve.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// genKey produces a short random key that is free in the namespace.
// Collisions on 6 random bytes are vanishingly rare; the loop is a
// formality.
func genKey(ctx context.Context, store Store, ns Namespace) (string, error) {
	for {
		key := randomToken(6)
		taken, err := store.KeyTaken(ctx, ns, key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
	}
}
