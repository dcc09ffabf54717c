package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gluk-w/claworc/llm-router/internal/config"
)

// AdminAuth middleware validates the shared admin secret. Profile secrets
// and the audit log sit behind it.
func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := config.Cfg.AdminSecret
		if secret == "" {
			http.Error(w, `{"error":"not_configured","message":"Admin secret not configured"}`, http.StatusServiceUnavailable)
			return
		}

		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth {
			http.Error(w, `{"error":"unauthorized","message":"Missing admin token"}`, http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			http.Error(w, `{"error":"forbidden","message":"Invalid admin token"}`, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
