package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims are the admin-surface JWT claims: a bearer must present a token
// signed with one of the server's configured keys, scoped to the admin
// audience. There is no username/role distinction here — every valid
// token is an admin token. This authenticates operators calling the
// bundled HTTP admin surface; it has nothing to do with the chat
// transport's own role check, which stays external to this library.
type claims struct {
	jwt.RegisteredClaims
}

const adminAudience = "visimatch-admin"

// adminAuthenticator validates bearer tokens against a fixed set of HMAC
// keys, one per configured API key, so rotating a key doesn't invalidate
// tokens signed under the others.
type adminAuthenticator struct {
	keys [][]byte
}

func newAdminAuthenticator(apiKeys []string) *adminAuthenticator {
	keys := make([][]byte, len(apiKeys))
	for i, k := range apiKeys {
		keys[i] = []byte(k)
	}
	return &adminAuthenticator{keys: keys}
}

// authenticate parses and validates a bearer token, trying each configured
// key until one verifies the signature.
func (a *adminAuthenticator) authenticate(tokenString string) (*claims, error) {
	var lastErr error
	for _, key := range a.keys {
		parsed := &claims{}
		token, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return key, nil
		}, jwt.WithAudience(adminAudience))
		if err == nil && token.Valid {
			return parsed, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = jwt.ErrTokenSignatureInvalid
	}
	return nil, lastErr
}

// requireAdmin is chi middleware enforcing a valid bearer token on every
// request it wraps. A server with no configured API keys has no way to
// mint a valid token, so requireAdmin rejects everything in that case
// rather than silently allowing unauthenticated access.
func (a *adminAuthenticator) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.keys) == 0 {
			http.Error(w, "admin surface has no configured API keys", http.StatusServiceUnavailable)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		parsed, err := a.authenticate(tokenString)
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, parsed)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsContextKey struct{}

// IssueAdminToken mints a bearer token for apiKey, signed with that same
// key, valid for the admin surface. Used by cmd/visimatchd's "token"
// subcommand so an operator can self-issue a token from a configured API
// key without a separate login flow.
func IssueAdminToken(apiKey string) (string, error) {
	now := jwt.NewNumericDate(time.Now())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{adminAudience},
			IssuedAt:  now,
			NotBefore: now,
		},
	})
	return token.SignedString([]byte(apiKey))
}
