package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per subject, falling back to the client IP.
// The chat stream route authenticates inside the handler, so the extractor
// is consulted when the context carries no subject yet.
func RateLimit(requestLimit int, windowLength time.Duration, extractor *IdentityExtractor) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := GetUserID(r.Context()); userID != "" {
				return "user:" + userID, nil
			}
			if extractor != nil {
				if subject, err := extractor.Subject(r.Header.Get("Authorization")); err == nil {
					return "user:" + subject, nil
				}
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","retry_after":60}`))
		}),
	)
}
