package middleware

import (
	"context"
	"net/http"
)

type contextKey string

// UserIDKey is the request context key under which the resolved owner id
// is stored.
const UserIDKey contextKey = "userID"

// WithUser resolves the request's owner from the X-User-ID header, set
// by the identity layer in front of this service, and stores it in the
// request context. Requests without an owner are rejected.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, "Missing user identity", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the owner id stored by WithUser.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
