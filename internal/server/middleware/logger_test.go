package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestLoggerCarriesResolvedIdentity(t *testing.T) {
	req := require.New(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Chain(inner,
		RequestMetadataMiddleware(),
		NewAuthMiddleware(testLogger(), NewJWTVerifier(testSecret)),
		NewRequestLogger(logger),
	)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, 7, "alice", testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	req.Equal(http.StatusOK, rec.Code)
	req.Contains(buf.String(), `"userID":7`)
	req.Contains(buf.String(), `"path":"/ws"`)
}
