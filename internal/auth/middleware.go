package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RequireAuth rejects unauthenticated requests with 401 and stores the claims in the context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// UnauthorizedMessage distinguishes a missing credential from a bad one.
func UnauthorizedMessage(err error) string {
	if errors.Is(err, ErrNoToken) {
		return "Not authenticated"
	}
	return "Invalid token"
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
		"message": UnauthorizedMessage(err),
	})
}
