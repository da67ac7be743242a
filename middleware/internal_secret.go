package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InternalSecretMiddleware пускает только запросы с "Authorization: Bearer <INTERNAL_SECRET>".
// Пустой секрет отклоняет всё. Неудачные попытки считаются по IP, после лимита – 429
func InternalSecretMiddleware(secret string, limiter *RateLimiter) gin.HandlerFunc {
	log := logging.Named("internal-auth")
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if limiter != nil && limiter.Blocked(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many failed attempts"})
			return
		}

		token, ok := bearerToken(c)
		if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			if limiter != nil {
				limiter.Limit(ip)
			}
			log.Warn("❌ Отклонён запрос к внутреннему API",
				zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
