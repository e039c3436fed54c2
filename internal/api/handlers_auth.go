/**
 * @description
 * Token issuance. Replaces the legacy pair of endpoints (sign-anything /jwt
 * plus a separate pin check) with one synchronous capability check: the PIN
 * is verified against the stored bcrypt hash and only then is a signed HS256
 * token returned.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pocketbank/ledger-service/internal/app"
	"github.com/pocketbank/ledger-service/internal/store"
)

const tokenTTL = time.Hour

type tokenRequest struct {
	Email string `json:"email"`
	Pin   string `json:"pin"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// TokenHandler handles POST /auth/token.
func (h *Handlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Pin == "" {
		h.writeError(w, http.StatusBadRequest, "email and pin are required")
		return
	}

	account, err := h.service.Authenticate(r.Context(), req.Email, req.Pin)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) || errors.Is(err, app.ErrInvalidCredentials) {
			// Same response for both so the endpoint does not leak which
			// emails exist.
			h.writeError(w, http.StatusUnauthorized, "Wrong email or PIN")
			return
		}
		log.Printf("level=error component=api endpoint=token msg=\"authentication failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to authenticate")
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    account.Email,
		"mobile": account.Mobile,
		"role":   account.Role,
		"iat":    now.Unix(),
		"exp":    now.Add(tokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.tokenSecret)
	if err != nil {
		log.Printf("level=error component=api endpoint=token msg=\"token signing failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to issue token")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: signed})
}
