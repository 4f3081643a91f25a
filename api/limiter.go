package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/xraph/rvoc"
)

// idleAfter is how long a client must stay quiet before its limiter is
// dropped. A dropped limiter comes back with a full burst.
const idleAfter = 10 * time.Minute

// clientState tracks the limiter for one client address.
type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter applies a token bucket per client address. A zero rate
// disables it.
type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientState
	lastPrune time.Time
	now       func() time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientState),
		now:     time.Now,
	}
}

// allow reports whether a request from addr may proceed.
func (l *clientLimiter) allow(addr string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > idleAfter {
		for k, cs := range l.clients {
			if now.Sub(cs.lastSeen) > idleAfter {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}

	cs := l.clients[addr]
	if cs == nil {
		cs = &clientState{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[addr] = cs
	}
	cs.lastSeen = now
	return cs.limiter.AllowN(now, 1)
}

func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:     rvoc.ErrLoginRateLimited.Error(),
				RequestID: RequestIDFrom(c),
			})
			return
		}
		c.Next()
	}
}
