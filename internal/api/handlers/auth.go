// HTTP handler for the public token exchange.
// POST /auth/token — verifies the configured API credentials and mints a JWT.
package handlers

import (
	"encoding/json"
	"net/http"

	pkgauth "github.com/clinico/clinico/pkg/auth"
)

// AuthHandler exchanges static API credentials for a bearer token.
type AuthHandler struct {
	signer   *pkgauth.TokenSigner
	user     string
	passHash string
}

// NewAuthHandler creates an AuthHandler for the configured credential pair.
func NewAuthHandler(signer *pkgauth.TokenSigner, user, passHash string) *AuthHandler {
	return &AuthHandler{signer: signer, user: user, passHash: passHash}
}

// TokenRequest is the request body for POST /auth/token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the response body after a successful exchange.
type TokenResponse struct {
	Token string `json:"token"`
}

// Token handles POST /auth/token.
//
// Response codes:
//   - 200 OK: token minted
//   - 400 Bad Request: invalid JSON
//   - 401 Unauthorized: unknown user or wrong password
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username != h.user || !pkgauth.CheckPassword(h.passHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.signer.Mint(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token minting failed")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}
