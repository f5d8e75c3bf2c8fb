// password.go - Optional password gate in front of drop access.
//
// Resolution order: owner bypasses, a prior unlock for this (ns, key)
// bypasses, otherwise the supplied password is checked against the stored
// bcrypt hash. Unlocks are carried in an HMAC-signed cookie so no
// server-side session state is needed.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const unlockTTL = 12 * time.Hour

var errBadToken = errors.New("bad token")

func hashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type unlockClaims struct {
	NS  Namespace `json:"ns"`
	Key string    `json:"key"`
	Exp int64     `json:"exp"` // unix seconds
}

// signToken creates a compact token: base64url(payload).base64url(sig)
// where sig = HMAC-SHA256(secret, payloadBytes).
func signToken(secret []byte, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(raw)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(raw) + "." + enc.EncodeToString(sig), nil
}

// verifyToken validates the signature and unmarshals the payload into out.
// Expiry is the caller's problem; the payload carries it.
func verifyToken(secret []byte, token string, out any) error {
	dot := -1
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot <= 0 || dot >= len(token)-1 {
		return errBadToken
	}

	enc := base64.RawURLEncoding
	raw, err := enc.DecodeString(token[:dot])
	if err != nil {
		return errBadToken
	}
	sig, err := enc.DecodeString(token[dot+1:])
	if err != nil {
		return errBadToken
	}

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(raw)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return errBadToken
	}
	return json.Unmarshal(raw, out)
}

func unlockCookieName(ns Namespace, key string) string {
	return "kd_unlock_" + string(ns) + "_" + key
}

// unlockValid reports whether the request carries a still-valid unlock
// token for this drop.
func (a *API) unlockValid(r *http.Request, ns Namespace, key string) bool {
	c, err := r.Cookie(unlockCookieName(ns, key))
	if err != nil {
		return false
	}
	var claims unlockClaims
	if err := verifyToken(a.secret, c.Value, &claims); err != nil {
		return false
	}
	return claims.NS == ns && claims.Key == key && a.now().Unix() <= claims.Exp
}

// grantUnlock sets the signed unlock cookie after a correct submission so
// later requests in the same session skip the prompt.
func (a *API) grantUnlock(w http.ResponseWriter, ns Namespace, key string) {
	token, err := signToken(a.secret, unlockClaims{
		NS:  ns,
		Key: key,
		Exp: a.now().Add(unlockTTL).Unix(),
	})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     unlockCookieName(ns, key),
		Value:    token,
		Path:     "/",
		MaxAge:   int(unlockTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// suppliedPassword pulls the candidate password off whichever transport
// the client used: header for the API, form field for browsers, query
// credential for bare download links.
func suppliedPassword(r *http.Request) string {
	if pw := r.Header.Get("X-Drop-Password"); pw != "" {
		return pw
	}
	if pw := r.PostFormValue("password"); pw != "" {
		return pw
	}
	return r.URL.Query().Get("password")
}

// gatePassword enforces the password gate for the drop. Returns nil when
// access is allowed; errPasswordReq or errUnauthorized otherwise. A
// missing drop never reaches this point, so "not found" and "wrong
// password" stay distinguishable.
func (a *API) gatePassword(w http.ResponseWriter, r *http.Request, d *Drop, actor *Account) error {
	if !d.HasPassword() {
		return nil
	}
	if isOwner(d, actor) {
		return nil
	}
	if a.unlockValid(r, d.NS, d.Key) {
		return nil
	}
	pw := suppliedPassword(r)
	if pw == "" {
		return errPasswordReq
	}
	if !checkPassword(d.PasswordHash, pw) {
		return errUnauthorized
	}
	a.grantUnlock(w, d.NS, d.Key)
	return nil
}
