package api

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/trading-grow/internal/auth"
	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/types"
)

// limiterIdleTTL is how long a caller's limiter survives without requests.
// Buckets refill well within this window, so dropping one loses no state.
const limiterIdleTTL = 10 * time.Minute

type callerLimiter struct {
	limiter  *rate.Limiter
	tier     types.Tier
	lastSeen time.Time
}

// RateLimiter manages per-caller rate limiting for API requests
type RateLimiter struct {
	mu        sync.Mutex
	callers   map[string]*callerLimiter
	lastSweep time.Time
	now       func() time.Time

	// Rate limits per tier, in requests per second
	limits map[types.Tier]rate.Limit
	bursts map[types.Tier]int
}

// NewRateLimiter creates a new rate limiter from per-minute tier limits
func NewRateLimiter(freeTierRPM, mediumTierRPM, proTierRPM int) *RateLimiter {
	rl := &RateLimiter{
		callers:   make(map[string]*callerLimiter),
		lastSweep: time.Now(),
		now:       time.Now,
		limits:    make(map[types.Tier]rate.Limit, 3),
		bursts:    make(map[types.Tier]int, 3),
	}
	for tier, rpm := range map[types.Tier]int{
		types.TierFree:   freeTierRPM,
		types.TierMedium: mediumTierRPM,
		types.TierPro:    proTierRPM,
	} {
		if rpm <= 0 {
			rl.limits[tier] = rate.Inf
			rl.bursts[tier] = 1
			continue
		}
		rl.limits[tier] = rate.Limit(float64(rpm) / 60)
		// Allow a tenth of the minute's budget in one burst
		rl.bursts[tier] = max(1, rpm/10)
	}
	return rl
}

// getLimiter returns the limiter of a caller. When the caller's tier changed
// since the last request, the limiter is retuned in place so that an
// approved upgrade takes effect immediately.
func (rl *RateLimiter) getLimiter(callerID string, tier types.Tier) *rate.Limiter {
	if !tier.IsValid() {
		tier = types.TierFree
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	entry, ok := rl.callers[callerID]
	if !ok {
		entry = &callerLimiter{
			limiter: rate.NewLimiter(rl.limits[tier], rl.bursts[tier]),
			tier:    tier,
		}
		rl.callers[callerID] = entry
	} else if entry.tier != tier {
		entry.limiter.SetLimitAt(now, rl.limits[tier])
		entry.limiter.SetBurstAt(now, rl.bursts[tier])
		entry.tier = tier
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep drops limiters idle for limiterIdleTTL, at most once per TTL.
// Callers hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < limiterIdleTTL {
		return
	}
	for id, entry := range rl.callers {
		if now.Sub(entry.lastSeen) >= limiterIdleTTL {
			delete(rl.callers, id)
		}
	}
	rl.lastSweep = now
}

// RateLimitMiddleware enforces the caller's tier limit. Authenticated callers
// are keyed by account, anonymous ones by client IP on the free tier.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := clientIP(r)
			tier := types.TierFree
			if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
				callerID = principal.AccountID()
				tier = principal.Tier()
			}

			limiter := rl.getLimiter(callerID, tier)

			reservation := limiter.Reserve()
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				retryAfter := int(math.Ceil(delay.Seconds()))
				respondServiceError(w, r, apperrors.NewRateLimitError(string(tier), retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
