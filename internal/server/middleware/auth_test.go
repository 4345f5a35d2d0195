package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func signToken(t *testing.T, userID int64, displayName string, secret string) string {
	t.Helper()
	claims := &AppClaims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// gate runs a request through metadata+auth and reports the metadata the
// inner handler observed, if it ran at all.
func gate(t *testing.T, build func(r *http.Request)) (*httptest.ResponseRecorder, *RequestMetadata) {
	t.Helper()
	var seen *RequestMetadata
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ReqMetadataFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Chain(inner,
		RequestMetadataMiddleware(),
		NewAuthMiddleware(testLogger(), NewJWTVerifier(testSecret)),
	)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	build(req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	req := require.New(t)
	rec, meta := gate(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signToken(t, 7, "alice", testSecret))
	})
	req.Equal(http.StatusOK, rec.Code)
	req.NotNil(meta)
	req.EqualValues(7, meta.UserID)
	req.Equal("alice", meta.DisplayName)
}

func TestAuthAcceptsSessionCookie(t *testing.T) {
	req := require.New(t)
	rec, meta := gate(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, 9, "bob", testSecret)})
	})
	req.Equal(http.StatusOK, rec.Code)
	req.EqualValues(9, meta.UserID)
}

func TestAuthRejectsMissingIdentity(t *testing.T) {
	req := require.New(t)
	rec, meta := gate(t, func(r *http.Request) {})
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Nil(meta, "handler must not run for an unauthenticated connection")
}

func TestAuthRejectsBadSignature(t *testing.T) {
	req := require.New(t)
	rec, meta := gate(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signToken(t, 7, "alice", "wrong-secret"))
	})
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Nil(meta)
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	claims := &AppClaims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, _ := gate(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed)
	})
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestAuthInlineIdentityOverridesToken(t *testing.T) {
	req := require.New(t)
	rec, meta := gate(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signToken(t, 7, "alice", testSecret))
		q := r.URL.Query()
		q.Set("user", `{"userId":11,"displayName":"mallory"}`)
		r.URL.RawQuery = q.Encode()
	})
	req.Equal(http.StatusOK, rec.Code)
	req.EqualValues(11, meta.UserID)
	req.Equal("mallory", meta.DisplayName)
}

func TestAuthInlineIdentityAlone(t *testing.T) {
	req := require.New(t)
	rec, meta := gate(t, func(r *http.Request) {
		r.URL.RawQuery = url.Values{"user": {`{"userId":3,"displayName":"carol"}`}}.Encode()
	})
	req.Equal(http.StatusOK, rec.Code)
	req.EqualValues(3, meta.UserID)
	req.Equal("carol", meta.DisplayName)
}
