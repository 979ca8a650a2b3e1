package httpserver

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/limiter"
)

// RateLimit throttles by category and source address. It runs in front of the
// Guard and never looks at credentials.
func (s *Server) RateLimit(c limiter.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// source address only; the subject is not known until the guard runs
			d, err := s.limiter.Check(r.Context(), c, clientAddr(r))
			if err != nil {
				s.log.Error("rate limit check", zap.String("category", string(c)), zap.Error(err))
				respondError(w, http.StatusInternalServerError, msgInternal)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				writeError(w, r, s.log, &errs.RateLimitError{Category: string(c), RetryAfter: d.RetryAfter}, msgUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
