package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"cinelike/internal/auth"
	"cinelike/internal/logging"
)

// Identifier resolves the caller of a request; "" means anonymous.
type Identifier interface {
	Identify(r *http.Request) (string, error)
}

// Identity attaches the caller's user id to the request context. Requests
// whose credentials fail verification continue as anonymous, so handlers
// decide whether identity is required.
func Identity(id Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := id.Identify(r)
			if err != nil {
				log.Debug().
					Err(err).
					Str("request_id", logging.RequestID(r.Context())).
					Msg("rejected caller credentials")
				userID = ""
			}

			if userID != "" {
				ctx := auth.WithUserID(r.Context(), userID)
				ctx = logging.WithUserID(ctx, userID)
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so the first one listed runs outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
