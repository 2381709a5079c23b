package middleware

import (
	"fmt"
	"net/http"

	"github.com/taskdeck/taskdeck-api/internal/api/shared"
	"github.com/taskdeck/taskdeck-api/internal/ratelimit"
)

// RateLimitMiddleware gates requests through a fixed-window rate limiter.
// Callers are identified by their authenticated user ID, so it must run after
// AuthMiddleware; unauthenticated paths fall back to the client address.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitMiddleware creates a RateLimitMiddleware around the limiter.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
	}
}

// Limit returns a middleware enforcing the limiter for the named operation.
// Each operation gets its own counting budget per caller.
func (m *RateLimitMiddleware) Limit(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := callerIdentity(r)

			decision := m.limiter.Admit(r.Context(), operation, callerID)
			if !decision.Allowed {
				// The response names the policy, never the caller identity or
				// the internal counter key.
				shared.RespondWithJSON(w, r, http.StatusTooManyRequests, shared.ErrorResponse{
					Status: http.StatusTooManyRequests,
					Error:  "Rate limit exceeded",
					Message: fmt.Sprintf(
						"You have exceeded the %d requests per %d seconds limit.",
						decision.Limit,
						int(decision.Window.Seconds()),
					),
					TraceID: shared.GetTraceID(r.Context()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerIdentity resolves who the request counts against: the authenticated
// user when present, the remote address otherwise.
func callerIdentity(r *http.Request) string {
	if userID, ok := GetUserID(r); ok {
		return userID.String()
	}
	return r.RemoteAddr
}
