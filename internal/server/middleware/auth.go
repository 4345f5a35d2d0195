package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// Identity is the resolved result of the handshake checks.
type Identity struct {
	UserID      int64
	DisplayName string
}

// TokenVerifier resolves a bearer credential to an identity. The default is
// local JWT verification; an external auth service can stand in behind the
// same interface.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

var ErrInvalidCredential = errors.New("invalid credential")

// AppClaims defines our custom JWT claims structure.
type AppClaims struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens issued by the auth service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}
	claims, ok := token.Claims.(*AppClaims)
	if !ok || claims.UserID == 0 {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
}

// NewAuthMiddleware is the connection gate. Two checks run in order: the
// bearer credential (Authorization header or session-token cookie), then an
// inline identity payload in the handshake query, which overrides the token
// identity when present. A connection with no resolvable identity is
// refused before any event handler can run.
func NewAuthMiddleware(logger *slog.Logger, verifier TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// Metadata middleware did not run; the chain is miswired.
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			var identity Identity
			resolved := false

			if tokenString := bearerToken(r); tokenString != "" {
				id, err := verifier.Verify(tokenString)
				if err != nil {
					logger.Warn("Invalid credential presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				identity = id
				resolved = true
			}

			// Inline identity supplied directly in the handshake.
			if raw := r.URL.Query().Get("user"); raw != "" {
				userID := gjson.Get(raw, "userId")
				displayName := gjson.Get(raw, "displayName")
				if userID.Exists() && userID.Int() != 0 {
					identity.UserID = userID.Int()
					identity.DisplayName = displayName.String()
					resolved = true
				}
			}

			if !resolved || identity.UserID == 0 {
				logger.Warn("Handshake carried no resolvable identity", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.UserID = identity.UserID
			reqMeta.DisplayName = identity.DisplayName
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from the Authorization header, falling
// back to the session-token cookie.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("session-token"); err == nil {
		return cookie.Value
	}
	return ""
}
