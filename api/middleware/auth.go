package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/trackbeam/trackbeam-backend/api/responses"
	pkgAuth "github.com/trackbeam/trackbeam-backend/pkg/auth"
	"github.com/trackbeam/trackbeam-backend/pkg/config"
	pkgerrors "github.com/trackbeam/trackbeam-backend/pkg/errors"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
)

// OperatorAuth validates a bearer token and seeds the request context with
// the operator identity.
func OperatorAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseOperatorToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxOperator, claims.Subject)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"operator": claims.Subject})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
