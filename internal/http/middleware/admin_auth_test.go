package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, method jwt.SigningMethod, secret string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "operator", ExpiresAt: jwt.NewNumericDate(exp)}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func serveAdmin(secret, authorization string) (*httptest.ResponseRecorder, string) {
	var subject string
	h := AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = AdminSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/escalations", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, subject
}

func TestAdminJWT(t *testing.T) {
	valid := signedToken(t, jwt.SigningMethodHS256, "secret", time.Now().Add(5*time.Minute))

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"no secret configured", "", "Bearer " + valid, http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic " + valid, http.StatusUnauthorized},
		{"wrong key", "secret", "Bearer " + signedToken(t, jwt.SigningMethodHS256, "other", time.Now().Add(time.Minute)), http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + signedToken(t, jwt.SigningMethodHS256, "secret", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"other hmac", "secret", "Bearer " + signedToken(t, jwt.SigningMethodHS512, "secret", time.Now().Add(time.Minute)), http.StatusUnauthorized},
		{"valid", "secret", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "secret", "bearer " + valid, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, subject := serveAdmin(tt.secret, tt.header)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "operator", subject)
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}
