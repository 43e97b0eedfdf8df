package handler

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/coursegen/internal/apperr"
)

// requireToken is middleware that checks the bearer token against the configured bcrypt hash.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	if h.config.TokenHash == "" {
		return next
	}
	hash := []byte(h.config.TokenHash)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			writeError(w, r, apperr.New(apperr.KindUnauthorized, "ErrUnauthorized", "unauthorized", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
