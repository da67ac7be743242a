package handlers

import (
	"net/http"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/cache"
	"github.com/Mighty-Nievl/mengundang-sub000/config"
	"github.com/Mighty-Nievl/mengundang-sub000/middleware"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers – зависимости HTTP-слоя. Scheduler и Cache могут быть nil
type Handlers struct {
	Store     models.Store
	Engine    *services.Engine
	Referrals *services.ReferralProcessor
	Scheduler *services.Scheduler
	Cache     *cache.StatsCache
}

// RegisterRoutes вешает все маршруты сервиса на r
func RegisterRoutes(r *gin.Engine, cfg *config.Config, h *Handlers) {
	r.GET("/api/health", HealthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ========== ВНУТРЕННИЙ API (планировщик, бот) ==========
	internal := r.Group("/api/internal")
	internal.Use(middleware.InternalSecretMiddleware(cfg.InternalSecret, middleware.NewRateLimiter(10, 5*time.Minute)))
	{
		internal.GET("/stats", h.StatsHandler)
		internal.POST("/reconcile", h.ReconcileHandler)
		internal.GET("/referrals/:userId/ledger", h.ReferralLedgerHandler)
		internal.POST("/referrals/:userId/payout/approve", h.ApprovePayoutHandler)
		internal.GET("/notifications/pending", h.PendingNotificationsHandler)
		internal.POST("/notifications/:id/confirm", h.ConfirmNotificationHandler)
	}

	// ========== АДМИНКА ==========
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWTSecret), middleware.AdminMiddleware())
	{
		admin.POST("/orders/:id/approve", h.AdminApproveOrderHandler)
		admin.POST("/orders/:id/reject", h.AdminRejectOrderHandler)
		admin.POST("/reconcile/run", h.AdminRunReconcileHandler)
	}

	// ========== ПОЛЬЗОВАТЕЛЬ ==========
	user := r.Group("/api/referrals")
	user.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		user.POST("/payout", h.RequestPayoutHandler)
	}
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}
