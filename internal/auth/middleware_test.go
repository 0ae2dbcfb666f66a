package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/auth"
	"github.com/noah-isme/backend-billing/internal/common"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, subject, issuer string, expiry time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(issuer).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(expiry).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func protected(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var got string
	mw := auth.Middleware{Verifier: auth.Verifier{Secret: []byte(testSecret), Issuer: "backend-billing"}}
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ := common.Subject(r.Context())
		got = subject
		w.WriteHeader(http.StatusNoContent)
	}))
	return handler, &got
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	handler, subject := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "owner-1", "backend-billing", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "owner-1", *subject)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	handler, _ := protected(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	handler, _ := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "owner-1", "backend-billing", time.Now().Add(-time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthRejectsWrongIssuer(t *testing.T) {
	handler, _ := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "owner-1", "someone-else", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
