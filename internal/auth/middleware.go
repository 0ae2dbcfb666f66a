package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-billing/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Verifier checks HS256 bearer tokens issued to API clients.
type Verifier struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
}

// ParseToken verifies the signature and the registered claims and returns
// the token subject.
func (v Verifier) ParseToken(raw string) (string, error) {
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(true),
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	tok, err := jwt.ParseString(raw, options...)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(tok.Subject())
	if subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return subject, nil
}

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier Verifier
}

// RequireAuth enforces a valid bearer token and attaches its subject to the
// request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		subject, err := m.Verifier.ParseToken(token)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), subject)))
	})
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
