// auth.go - Thin account layer: register, login, session cookies, and the
// anonymous-claim handoff.
//
// Sessions are HMAC-signed compact tokens in a cookie; no server-side
// session table. The interesting part is the claim: registering (or
// explicitly claiming) reassigns every drop carrying the caller's
// anonymous token to the new account in one statement.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookie = "kd_session"
	sessionTTL    = 12 * time.Hour

	// anonCookie correlates anonymous uploads with a later registration.
	anonCookie    = "kd_anon"
	anonCookieTTL = 7 * 24 * time.Hour
)

type sessionClaims struct {
	AccountID string `json:"account_id"`
	Exp       int64  `json:"exp"`
}

// currentAccount resolves the session cookie to an account, nil when the
// request is anonymous or the session is stale.
func (a *API) currentAccount(r *http.Request) *Account {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	var claims sessionClaims
	if err := verifyToken(a.secret, c.Value, &claims); err != nil {
		return nil
	}
	if a.now().Unix() > claims.Exp {
		return nil
	}
	id, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return nil
	}
	acct, err := a.store.AccountByID(r.Context(), id)
	if err != nil {
		rid := RequestIDFromContext(r.Context())
		log.Printf("rid=%s msg=account_lookup_failed err=%v", rid, err)
		return nil
	}
	return acct
}

func (a *API) setSession(w http.ResponseWriter, acct *Account) {
	token, err := signToken(a.secret, sessionClaims{
		AccountID: acct.ID.String(),
		Exp:       a.now().Add(sessionTTL).Unix(),
	})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// anonToken returns the caller's anonymous claim token, minting one when
// absent. The second return tells the caller to set the cookie.
func anonToken(r *http.Request) (token string, minted bool) {
	if c, err := r.Cookie(anonCookie); err == nil && c.Value != "" {
		return c.Value, false
	}
	return randomToken(32), true
}

func setAnonCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(anonCookieTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type credentialsReq struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AnonToken string `json:"anon_token,omitempty"`
}

// RegisterHandler creates an account and claims any drops the caller made
// anonymously. POST /auth/register
func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadRequest("invalid JSON"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Username) > 64 || len(req.Password) < 8 {
		writeError(w, r, errBadRequest("username required; password must be at least 8 characters"))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	acct := &Account{
		ID:           uuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
		Plan:         PlanFree,
		CreatedAt:    a.now(),
	}
	if err := a.store.CreateAccount(r.Context(), acct); err != nil {
		if err == errUsernameTaken {
			writeError(w, r, &apiError{Status: http.StatusConflict, Message: "username already taken"})
			return
		}
		writeError(w, r, err)
		return
	}

	claimed := a.claimFor(w, r, acct, req.AnonToken)
	a.setSession(w, acct)

	writeJSON(w, http.StatusCreated, map[string]any{
		"username": acct.Username,
		"plan":     acct.Plan,
		"claimed":  claimed,
	})
}

// LoginHandler verifies credentials and issues a session. POST /auth/login
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadRequest("invalid JSON"))
		return
	}

	acct, err := a.store.AccountByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Same answer for unknown user and wrong password.
	if acct == nil || !checkPassword(acct.PasswordHash, req.Password) {
		writeError(w, r, errUnauthorized)
		return
	}

	claimed := a.claimFor(w, r, acct, req.AnonToken)
	a.setSession(w, acct)

	writeJSON(w, http.StatusOK, map[string]any{
		"username": acct.Username,
		"plan":     acct.Plan,
		"claimed":  claimed,
	})
}

// ClaimHandler reassigns anonymous drops to the session account on
// demand. POST /auth/claim
func (a *API) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	acct := a.currentAccount(r)
	if acct == nil {
		writeError(w, r, errUnauthorized)
		return
	}
	var req struct {
		AnonToken string `json:"anon_token"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	claimed := a.claimFor(w, r, acct, req.AnonToken)
	writeJSON(w, http.StatusOK, map[string]any{"claimed": claimed})
}

// claimFor runs the claim with the explicit token when given, falling
// back to the anon cookie. A missing token claims nothing. The cookie is
// cleared once spent.
func (a *API) claimFor(w http.ResponseWriter, r *http.Request, acct *Account, explicit string) int64 {
	token := explicit
	if token == "" {
		if c, err := r.Cookie(anonCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return 0
	}

	claimed, err := a.store.ClaimAnonymous(r.Context(), acct.ID, token)
	if err != nil {
		rid := RequestIDFromContext(r.Context())
		log.Printf("rid=%s msg=claim_failed err=%v", rid, err)
		return 0
	}
	if claimed > 0 {
		metrics.claims.Add(claimed)
		http.SetCookie(w, &http.Cookie{Name: anonCookie, Value: "", Path: "/", MaxAge: -1})
	}
	return claimed
}

// PlanHandler changes the session account's plan and stretches explicit
// expiries of owned drops out to the new ceiling. Billing is someone
// else's problem; this is the hook it calls. POST /auth/plan
func (a *API) PlanHandler(w http.ResponseWriter, r *http.Request) {
	acct := a.currentAccount(r)
	if acct == nil {
		writeError(w, r, errUnauthorized)
		return
	}
	var req struct {
		Plan Plan `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errBadRequest("invalid JSON"))
		return
	}
	switch req.Plan {
	case PlanFree, PlanStarter, PlanPro:
	default:
		writeError(w, r, errBadRequest("invalid plan"))
		return
	}

	if err := a.store.SetAccountPlan(r.Context(), acct.ID, req.Plan); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.store.ExtendOwnedDropExpiries(r.Context(), acct.ID, req.Plan.Limits().MaxExpiryDays); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": req.Plan})
}
