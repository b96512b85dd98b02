package handlers

import (
	"net/http"

	"github.com/xelth-com/magazzino/internal/utils"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login checks the operator credentials and issues an access token
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var loginReq LoginRequest
	if err := decodeJSON(req, &loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	admin := r.deps.Config.Admin
	if admin.PasswordHash == "" {
		respondError(w, http.StatusServiceUnavailable, "Operator login is not configured")
		return
	}
	if loginReq.Username != admin.Username || !utils.CheckPasswordHash(loginReq.Password, admin.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := utils.GenerateToken(admin.Username, r.deps.Config.JWTSecret, r.now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"accessToken": token,
		"expiresIn":   int(utils.TokenTTL.Seconds()),
		"user":        admin.Username,
	})
}
