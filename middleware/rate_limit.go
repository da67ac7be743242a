package middleware

import (
	"sync"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// valid – попытки внутри окна; вызывать под mu
func (rl *RateLimiter) valid(key string, now time.Time) []time.Time {
	var valid []time.Time
	for _, t := range rl.attempts[key] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, key)
	}
	return valid
}

// Limit фиксирует попытку и сообщает, превышен ли лимит
func (rl *RateLimiter) Limit(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := rl.valid(key, now)
	if len(valid) >= rl.limit {
		rl.attempts[key] = valid
		return true // превышен лимит
	}

	rl.attempts[key] = append(valid, now)
	return false
}

// Blocked – лимит исчерпан, новая попытка не записывается
func (rl *RateLimiter) Blocked(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.valid(key, time.Now())
	if len(valid) > 0 {
		rl.attempts[key] = valid
	}
	return len(valid) >= rl.limit
}

// SecurityMonitor логирует 401/403
func SecurityMonitor() gin.HandlerFunc {
	log := logging.Named("security")
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status == 401 || status == 403 {
			log.Warn("⚠️ Неавторизованный доступ",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()))
		}
	}
}
