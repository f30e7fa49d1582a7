package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues tokens for the single configured operator account.
type AuthHandler struct {
	User         string
	PasswordHash string
	Secret       []byte
	TTL          time.Duration

	now func() time.Time
}

// Login checks username and password against the bcrypt hash and returns
// an HS256 token whose subject is the username.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}

	// No hash configured means login is disabled.
	if h.PasswordHash == "" || strings.TrimSpace(input.Username) != h.User {
		JSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(input.Password)); err != nil {
		JSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now
	if h.now != nil {
		now = h.now
	}
	ttl := h.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	exp := now().Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   h.User,
		IssuedAt:  jwt.NewNumericDate(now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.Secret)
	if err != nil {
		JSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      signed,
		"expires_at": exp.UTC(),
	})
}
