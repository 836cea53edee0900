package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/casefile-ai/lexrag/internal/logging"
)

// authMiddleware enforces Bearer token authentication on protected routes.
// With an empty apiKey the middleware is a no-op (development mode; a single
// startup warning is emitted by New, not one per request).
//
// Clients must send:
//
//	Authorization: Bearer <apiKey>
//
// Failures receive 401 with a WWW-Authenticate: Bearer challenge. The
// presented token value is never logged, only whether one was present.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		switch {
		case token == "":
			logging.FromContext(r.Context()).Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path))
			unauthorized(w, `Bearer realm="lexrag"`, "authorization required")
		case token != apiKey:
			logging.FromContext(r.Context()).Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true))
			unauthorized(w, `Bearer realm="lexrag" error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// unauthorized writes a 401 with the given WWW-Authenticate challenge.
func unauthorized(w http.ResponseWriter, challenge, msg string) {
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, msg, http.StatusUnauthorized)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns "" if the header is absent or not a Bearer credential.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
