package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger logs every handshake that passed the connection gate,
// carrying the resolved identity. Must run after the auth middleware.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				logger.Info("Accepted handshake",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("ip", reqMeta.IP),
					slog.Int64("userID", reqMeta.UserID),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
