package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP.
type RateLimiter struct {
	mutex     sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	nowFn     func() time.Time
}

// NewRateLimiter allows perMinute requests per IP with the given burst. A
// non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int, burst int) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		nowFn:    time.Now,
	}
}

// Allow reports whether key may proceed now and evicts idle visitors.
func (limiter *RateLimiter) Allow(key string) bool {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	now := limiter.nowFn()
	if now.Sub(limiter.lastSweep) > visitorIdleTimeout {
		for ip, entry := range limiter.visitors {
			if now.Sub(entry.lastSeen) > visitorIdleTimeout {
				delete(limiter.visitors, ip)
			}
		}
		limiter.lastSweep = now
	}
	entry, ok := limiter.visitors[key]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Middleware rejects over-limit clients with 429.
func (limiter *RateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !limiter.Allow(ctx.ClientIP()) {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse("rate_limited", "too many requests, try again later"))
			return
		}
		ctx.Next()
	}
}
