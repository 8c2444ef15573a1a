// Package limiter holds the three throttles the gateways apply: a
// per-connection message limiter, a per-IP concurrent connection cap, and a
// Redis fixed-window limiter for the REST surface.
package limiter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/metrics"
)

// Error text is surfaced verbatim to clients.
var (
	ErrTooManyRequests    = errors.New("Too many requests. Please slow down.")
	ErrTooManyConnections = errors.New("Too many connections from your IP")
)

const (
	messagesPerSecond = 30
	messageBurst      = 60

	// MaxConnsPerIP caps concurrent sockets from one source address.
	MaxConnsPerIP = 5

	// ipEntryGrace keeps an emptied IP entry around briefly so rapid
	// reconnects reuse it instead of churning the map.
	ipEntryGrace = 60 * time.Second
)

// MessageLimiter throttles inbound frames on a single connection. Excess
// frames are dropped, not fatal.
type MessageLimiter struct {
	lim *rate.Limiter
}

func NewMessageLimiter() *MessageLimiter {
	return &MessageLimiter{lim: rate.NewLimiter(rate.Limit(messagesPerSecond), messageBurst)}
}

func (m *MessageLimiter) Allow() bool {
	return m.lim.Allow()
}

type ipEntry struct {
	count      int
	emptySince time.Time
}

// ConnLimiter enforces MaxConnsPerIP. Entries that drop to zero are garbage
// collected after a grace period by a background sweep.
type ConnLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	max     int
}

func NewConnLimiter() *ConnLimiter {
	c := &ConnLimiter{
		entries: make(map[string]*ipEntry),
		max:     MaxConnsPerIP,
	}
	go c.sweep()
	return c
}

// Acquire claims a slot for ip. The caller must Release exactly once per
// successful Acquire.
func (c *ConnLimiter) Acquire(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok {
		e = &ipEntry{}
		c.entries[ip] = e
	}
	if e.count >= c.max {
		metrics.ConnectionRejects.Inc()
		return false
	}
	e.count++
	e.emptySince = time.Time{}
	return true
}

func (c *ConnLimiter) Release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok {
		return
	}
	if e.count > 0 {
		e.count--
	}
	if e.count == 0 {
		e.emptySince = time.Now()
	}
}

func (c *ConnLimiter) sweep() {
	ticker := time.NewTicker(ipEntryGrace)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-ipEntryGrace)
		c.mu.Lock()
		for ip, e := range c.entries {
			if e.count == 0 && !e.emptySince.IsZero() && e.emptySince.Before(cutoff) {
				delete(c.entries, ip)
			}
		}
		c.mu.Unlock()
	}
}

// ClientIP resolves the source address, honouring the first hop of
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var redisClient *redis.Client

// InitRedis wires the shared Redis client used by the HTTP rate limit
// middleware. On connection failure the client stays nil and the middleware
// fails open.
func InitRedis(addr, password string, db int) {
	if addr == "" {
		return
	}
	redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient = nil
	}
}

// HTTPRateLimit is a fixed-window limiter over Redis INCR/EXPIRE, keyed by
// client IP. Without Redis, or on Redis errors, requests pass through.
func HTTPRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		ctx := context.Background()

		val, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}
		if val == 1 {
			redisClient.Expire(ctx, key, window)
		}
		if val > int64(maxRequests) {
			metrics.RateLimitDrops.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
