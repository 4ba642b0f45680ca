package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gardenfresh/order-payments/internal"
	"github.com/gardenfresh/order-payments/pkg/logger"
)

// SessionClaims is the device session token payload. The app mints one per
// install; Subject carries the device identifier.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionAuth validates the device session token on client-facing routes.
// Webhook routes never go through this; the gateway authenticates with its
// checksum signature instead.
func SessionAuth(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing session token")
				return
			}

			claims := &SessionClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				log.Warn("rejected session token", "error", err, "path", r.URL.Path)
				writeUnauthorized(w, "invalid session token")
				return
			}

			ctx := internal.ContextWithDeviceID(r.Context(), claims.Subject)
			ctx = logger.With(ctx, "deviceID", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    false,
		"error": message,
		"code":  "UNAUTHORIZED",
	})
}
