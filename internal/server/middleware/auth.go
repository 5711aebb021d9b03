package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/state"
)

type PermissionCompiler func(names []string) (state.Permission, error)

// AppClaims defines our custom JWT claims structure.
type AppClaims struct {
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// extractToken pulls the bearer credential from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// field of the handshake.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// NewAuthMiddleware validates the handshake credential and binds the
// resulting identity to the request metadata. Any failure here closes the
// handshake before a connection record exists; per-operation errors later
// are never fatal, this one is.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string, directory platform.UserDirectory, pCompiler PermissionCompiler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := extractToken(r)
			if tokenString == "" {
				logger.Warn("Handshake missing bearer token", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			// Parse and validate the JWT token with HMAC signing
			token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid JWT token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*AppClaims)
			if !ok || claims.Subject == "" {
				logger.Warn("Valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// The directory is the source of truth for the principal;
			// tokens of deactivated users are rejected here.
			record, err := directory.Lookup(r.Context(), claims.Subject)
			if err != nil {
				logger.Warn("Token subject not found in directory",
					slog.String("ip", reqMeta.IP),
					slog.String("sub", claims.Subject),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !record.Active {
				logger.Warn("Deactivated user attempted handshake",
					slog.String("ip", reqMeta.IP),
					slog.String("sub", claims.Subject),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			permNames := append(append([]string(nil), record.Permissions...), claims.Permissions...)
			perms, err := pCompiler(permNames)
			if err != nil {
				logger.Error("Credential contains unregistered permissions",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			reqMeta.Identity = state.Identity{
				UserID:      record.ID,
				Email:       record.Email,
				Role:        record.Role,
				TenantID:    record.TenantID,
				Permissions: perms,
			}
			next.ServeHTTP(w, r)
		})
	}
}
