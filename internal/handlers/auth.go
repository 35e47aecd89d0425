// Admin login/logout/session-check handlers (spec §4.5, §6). Grounded in
// the teacher's auth.go cookie-setting pattern; password comparison uses
// bcrypt as the teacher does, even though Michael has a single admin
// identity rather than per-host credentials.
package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/bromanko/michael/internal/apperr"
	"github.com/bromanko/michael/internal/httpapi"
	"github.com/bromanko/michael/internal/middleware"
)

type AuthHandlers struct {
	deps         *Deps
	passwordHash []byte
}

// NewAuthHandlers hashes the configured admin password once at startup;
// comparisons never touch the plaintext again.
func NewAuthHandlers(deps *Deps) (*AuthHandlers, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(deps.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AuthHandlers{deps: deps, passwordHash: hash}, nil
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login implements POST /api/admin/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	if bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		httpapi.WriteError(w, apperr.Unauthorized("invalid password"))
		return
	}

	sess, err := h.deps.Sessions.Create(r.Context())
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to create session", err))
		return
	}

	middleware.SetSessionCookie(w, sess, h.deps.SecureCookies)
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Logout implements POST /api/admin/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("michael_session")
	if err == nil {
		if revokeErr := h.deps.Sessions.Revoke(r.Context(), cookie.Value); revokeErr != nil {
			h.deps.Logger.Printf("[AUTH] failed to revoke session: %v", revokeErr)
		}
	}
	middleware.ClearSessionCookie(w, h.deps.SecureCookies)
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Session implements GET /api/admin/session. It sits behind RequireAuth,
// so reaching this handler body already proves the session is valid.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
