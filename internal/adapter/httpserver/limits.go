package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/pscheid92/pipelinepulse/internal/platform/errors"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTimeout     = 10 * time.Minute
)

// LimitReason describes why a connection was rejected. It doubles as the
// "reason" label of the rejected-connections metric.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits guards the WebSocket endpoint with a total connection
// cap, a per-IP cap and a per-IP token bucket for new connections.
type ConnectionLimits struct {
	clock clockwork.Clock

	maxTotal int64
	active   atomic.Int64

	mu        sync.Mutex
	maxPerIP  int
	perIP     map[string]int
	rate      rate.Limit
	burst     int
	limiters  map[string]*rateLimiterEntry
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(clock clockwork.Clock, maxTotal, maxPerIP int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxTotal:  int64(maxTotal),
		maxPerIP:  maxPerIP,
		perIP:     make(map[string]int),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		limiters:  make(map[string]*rateLimiterEntry),
		cleanupAt: clock.Now().Add(limiterCleanupInterval),
	}
}

// Acquire reserves a slot for ip. On success the caller must Release it.
// The rate check runs first and consumes a token even if a cap rejects.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allow(ip) {
		return false, LimitReasonRate
	}

	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= l.maxPerIP {
		l.active.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else {
		delete(l.perIP, ip)
	}
	l.mu.Unlock()

	l.active.Add(-1)
}

// Active returns the number of held slots.
func (l *ConnectionLimits) Active() int64 {
	return l.active.Load()
}

func (l *ConnectionLimits) ActiveFor(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// TrackedIPs returns the number of per-IP token buckets kept in memory.
func (l *ConnectionLimits) TrackedIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.active.Load()
		if current >= l.maxTotal {
			return false
		}
		if l.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup drops idle buckets. Must be called with mu held.
func (l *ConnectionLimits) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleTimeout)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func limitError(reason LimitReason) *apperrors.Error {
	switch reason {
	case LimitReasonRate:
		return apperrors.RateLimitedError("too many connection attempts")
	case LimitReasonPerIP:
		return apperrors.RateLimitedError("too many connections from this address")
	default:
		return apperrors.UnavailableError("server at connection capacity")
	}
}
