package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/marketplace-ledger/internal/auth"
	"github.com/example/marketplace-ledger/internal/domain/order"
)

type contextKey string

const (
	UserContextKey      contextKey = "user"
	RequestIDContextKey contextKey = "request_id"
)

const accessTokenCookie = "access_token"

// ExtractToken reads the access token from the cookie browsers send, falling
// back to an Authorization: Bearer header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// challenge answers 401 with an RFC 6750 Bearer challenge
func challenge(w http.ResponseWriter, message, bearerError string) {
	value := `Bearer realm="` + auth.Issuer + `"`
	if bearerError != "" {
		value += `, error="` + bearerError + `"`
	}
	w.Header().Set("WWW-Authenticate", value)
	respondError(w, message, "unauthenticated", http.StatusUnauthorized)
}

// AuthMiddleware admits requests carrying a valid access token and stores
// its claims in the request context.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				challenge(w, "unauthorized", "")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				challenge(w, err.Error(), "invalid_token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, claims)))
		})
	}
}

// RequireRole admits callers holding any of roles. It must run after
// AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			switch {
			case !ok:
				challenge(w, "unauthorized", "")
			case !allowed[claims.Role]:
				respondError(w, "forbidden", "unauthorized_actor", http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// ActorFromContext returns the authenticated caller as a domain actor
func ActorFromContext(ctx context.Context) (order.Actor, bool) {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return order.Actor{}, false
	}
	return order.Actor{ID: claims.UserID, Role: order.Role(claims.Role)}, true
}
