// Package middleware contains the per-request authentication
// extractor: it locates a bearer credential, hands it to the auth
// service, and injects the verified claims into the request context.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tobiasfell/quill/auth"
	"github.com/tobiasfell/quill/jwt"
)

// CookieName is the fallback cookie carrying a raw token when no
// Authorization header is present.
const CookieName = "auth-token"

type claimsContextKey struct{}

// ClaimsFromContext returns the verified claims injected by Auth.
func ClaimsFromContext(ctx context.Context) (*jwt.UserClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.UserClaims)
	return claims, ok
}

// ErrorWriter renders an auth failure to the response. The HTTP layer
// supplies its JSON error body writer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Auth guards a route: it extracts the token, verifies it through svc,
// and either forwards the request with claims in context or writes the
// verification error unchanged.
func Auth(svc *auth.Service, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractToken(r)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			claims, err := svc.VerifyToken(r.Context(), token)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken implements the credential location contract: the
// Authorization header wins; absent that, the auth-token cookie; absent
// both, authorization is required.
func extractToken(r *http.Request) (string, error) {
	// Values (not Get) so a present-but-empty header is a format
	// error rather than a silent fallthrough to the cookie.
	if values := r.Header.Values("Authorization"); len(values) > 0 {
		return parseAuthHeader(values[0])
	}

	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", auth.ErrAuthorizationRequired
}

func parseAuthHeader(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", auth.ErrInvalidAuthHeader
	}

	switch parts[0] {
	case "Bearer":
		return parts[1], nil
	case "Signature":
		return "", auth.ErrSignatureAuthNotSupported
	default:
		return "", auth.ErrInvalidAuthHeader
	}
}
