package middleware

import (
	"strings"

	"github.com/Mighty-Nievl/mengundang-sub000/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Из браузера ходят только админка и личный кабинет; /api/internal вызывается сервер-сервер
var browserPrefixes = []string{"/api/admin", "/api/referrals"}

// SetupCORS отдаёт CORS-заголовки только браузерным группам маршрутов.
// Токен передаётся в Authorization, поэтому куки не нужны и AllowCredentials выключен
func SetupCORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * 60 * 60,
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	handler := cors.New(corsConfig)

	return func(c *gin.Context) {
		if !browserFacing(c.Request.URL.Path) {
			c.Next()
			return
		}
		handler(c)
	}
}

func browserFacing(path string) bool {
	for _, p := range browserPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
