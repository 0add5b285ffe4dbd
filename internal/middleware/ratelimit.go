package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/astrochat/astrochat-backend/pkg/clientip"
)

const (
	globalRateLimitRPS   = 5
	globalRateLimitBurst = 20

	loginRateLimitEvery = 5 * time.Second
	loginRateLimitBurst = 3

	limiterCleanupInterval = 5 * time.Minute
	limiterTTL             = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// IPRateLimiter keeps one token bucket per client IP and evicts idle ones.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	newFn   func() *rate.Limiter
	message string

	cleanupOnce sync.Once
}

func newIPRateLimiter(newFn func() *rate.Limiter, message string) *IPRateLimiter {
	return &IPRateLimiter{
		entries: make(map[string]*limiterEntry),
		newFn:   newFn,
		message: message,
	}
}

// NewGlobalRateLimiter builds the per-IP limiter applied to every route.
func NewGlobalRateLimiter() *IPRateLimiter {
	return newIPRateLimiter(func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(globalRateLimitRPS), globalRateLimitBurst)
	}, `{"success":false,"message":"Too many requests. Please slow down."}`)
}

// NewLoginRateLimiter builds the stricter limiter for credential endpoints.
func NewLoginRateLimiter() *IPRateLimiter {
	return newIPRateLimiter(func() *rate.Limiter {
		return rate.NewLimiter(rate.Every(loginRateLimitEvery), loginRateLimitBurst)
	}, `{"success":false,"message":"Too many login attempts. Please try again later."}`)
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupOnce.Do(l.startCleanup)
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: l.newFn(), lastUse: time.Now()}
		l.entries[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func (l *IPRateLimiter) startCleanup() {
	go func() {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			l.mu.Lock()
			now := time.Now()
			for ip, e := range l.entries {
				if now.Sub(e.lastUse) > limiterTTL {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		}
	}()
}

// Handler is the chi-compatible middleware form.
func (l *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientip.RealClientIP(r)
		if !l.get(ip).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(l.message))
			return
		}
		next.ServeHTTP(w, r)
	})
}
