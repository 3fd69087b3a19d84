package api

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const retryAfterSeconds = "1"

// rateLimiter admits a request costing n tokens.
type rateLimiter interface {
	AllowN(n int) bool
}

// costFunc reports how many tokens a request consumes.
type costFunc func(*http.Request) int

type limiterAdapter struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &limiterAdapter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// AllowN clamps n to the bucket size so that a batch larger than the burst
// drains the bucket instead of being rejected forever.
func (l *limiterAdapter) AllowN(n int) bool {
	if l == nil || l.limiter == nil {
		return true
	}
	if n < 1 {
		n = 1
	}
	if burst := l.limiter.Burst(); n > burst {
		n = burst
	}
	return l.limiter.AllowN(time.Now(), n)
}

func rateLimitMiddleware(limiter rateLimiter, cost costFunc, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := 1
		if cost != nil {
			n = max(cost(r), 1)
		}
		if limiter.AllowN(n) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Retry-After", retryAfterSeconds)
		resp := errorResponse{
			Error:      "Too many requests",
			Details:    fmt.Sprintf("rate limit exceeded, request costs %d consolidation token(s)", n),
			Suggestion: "retry after " + retryAfterSeconds + "s",
		}
		if n > 1 {
			resp.Suggestion += " or consolidate fleets individually"
		}
		writeJSON(w, http.StatusTooManyRequests, resp)
	})
}

// requestCost charges a batch consolidation one token per stored fleet,
// since it runs that many consolidations. Everything else costs one token.
func (h *Handler) requestCost(r *http.Request) int {
	if r.Method != http.MethodPost || r.URL.Path != "/api/fleets/consolidate" {
		return 1
	}
	names, err := h.storage.ListFleets()
	if err != nil {
		return 1
	}
	return max(len(names), 1)
}
