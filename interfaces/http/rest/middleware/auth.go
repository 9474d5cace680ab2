package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"curricula/pkg/auth"
)

// AuthMiddlewareConfig bundles the dependencies for request authentication.
type AuthMiddlewareConfig struct {
	Validator   *auth.JWTValidator
	IPLimiter   *auth.IPRateLimiter
	UserLimiter *auth.UserRateLimiter
	Logger      *zap.Logger
}

// Authenticate validates the bearer token and attaches the caller identity
// to the request context. Requests are rate limited by client IP before
// token validation and by user id after it.
func Authenticate(cfg AuthMiddlewareConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.IPLimiter != nil {
				ip := getClientIP(r)
				if allowed, _ := cfg.IPLimiter.Allow(r.Context(), ip); !allowed {
					respondJSON(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
					return
				}
			}

			tokenString := extractToken(r)
			if tokenString == "" {
				respondUnauthorized(w, "missing authorization token")
				return
			}

			claims, err := cfg.Validator.ValidateToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					respondUnauthorized(w, "token expired")
				case errors.Is(err, auth.ErrInvalidSignature):
					cfg.Logger.Warn("token with invalid signature",
						zap.String("remote_addr", r.RemoteAddr))
					respondUnauthorized(w, "invalid token signature")
				default:
					respondUnauthorized(w, "invalid token")
				}
				return
			}

			if cfg.UserLimiter != nil {
				if allowed, _ := cfg.UserLimiter.Allow(r.Context(), claims.UserID); !allowed {
					respondJSON(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
					return
				}
			}

			user := &auth.UserContext{
				UserID: claims.UserID,
				Email:  claims.Email,
				Roles:  claims.Roles,
			}
			next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
		})
	}
}

// RequireRole rejects requests whose authenticated user lacks the given role.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.GetUserFromContext(r.Context())
			if err != nil {
				respondUnauthorized(w, "authentication required")
				return
			}
			if !user.HasRole(role) {
				respondJSON(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="curricula"`)
	respondJSON(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func respondJSON(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     message,
		"code":      code,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
