package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bryanwahyu/iaccessible/internal/domain/identity"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// BearerAuth resolves the Authorization bearer token to a caller id. Requests
// without a verified caller never reach next.
func BearerAuth(verifier identity.Verifier, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "Unauthorized: No token provided")
				return
			}

			uid, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrMissingToken) {
					unauthorized(w, "Unauthorized: No token provided")
					return
				}
				log.Warn("token verification failed", zap.Error(err), zap.String("path", r.URL.Path))
				unauthorized(w, "Unauthorized: Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credential from "Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

// GetUserIDFromContext extracts the verified caller id from context
func GetUserIDFromContext(ctx context.Context) string {
	if uid, ok := ctx.Value(UserIDKey).(string); ok {
		return uid
	}
	return ""
}

// WithUserID stores a caller id the way BearerAuth does.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UserIDKey, uid)
}
