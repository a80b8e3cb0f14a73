package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	platformjwt "gatehouse/internal/platform/jwt"
	"gatehouse/pkg/requestcontext"
)

// JWTValidator is the slice of the token validator the middleware needs.
type JWTValidator interface {
	ValidateToken(tokenString string) (*platformjwt.Claims, error)
}

// RequireAuth validates the bearer token and attaches the acting identity to
// the request context. Every lifecycle endpoint sits behind it; which roles
// may reach which endpoint is enforced further down where it gates a
// transition.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(r.Context(), "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := requestcontext.WithIdentity(r.Context(), requestcontext.ActingIdentity{
				UserID: claims.UserID,
				HostID: claims.HostID,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
