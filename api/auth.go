/*
auth.go - Bearer token authentication

PURPOSE:
  Resolves the owner of every /api request from a JWT issued by the
  external identity provider. Tokens are HS256 with a shared secret; the
  sub claim is the owner id. All ledger data is scoped to that owner.

SEE ALSO:
  - server.go: Mounts Authenticate on /api
  - config/config.go: AUTH_JWT_SECRET, AUTH_ISSUER
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Cronanaut/veronagrow/ledger"
)

type ctxKey int

const ownerKey ctxKey = iota

// Authenticator verifies bearer tokens.
type Authenticator struct {
	Secret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
}

// ParseToken validates tokenStr and returns its subject as the owner.
func (a Authenticator) ParseToken(tokenStr string) (ledger.UserID, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return ledger.UserID(claims.Subject), nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// owner in the request context.
func (a Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing or invalid authorization header", nil)
			return
		}
		owner, err := a.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

// WithOwner returns a context carrying owner.
func WithOwner(ctx context.Context, owner ledger.UserID) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFrom returns the authenticated owner, or "" outside Authenticate.
func OwnerFrom(ctx context.Context) ledger.UserID {
	owner, _ := ctx.Value(ownerKey).(ledger.UserID)
	return owner
}
