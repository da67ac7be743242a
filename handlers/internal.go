package handlers

import (
	"net/http"
	"strconv"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPendingLimit = 20
	maxPendingLimit     = 100
)

type ReconcileRequest struct {
	Transactions []models.ExtractedTransaction `json:"transactions"`
}

type ConfirmRequest struct {
	Status models.NotificationStatus `json:"status" binding:"required"`
	Error  string                    `json:"error"`
}

// StatsHandler – сводка биллинга, кэшируется в Redis
func (h *Handlers) StatsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	log := logging.Named("stats")

	if cached, err := h.Cache.Get(ctx); err != nil {
		log.Warn("кэш статистики недоступен", zap.Error(err))
	} else if cached != nil {
		c.JSON(http.StatusOK, gin.H{"stats": cached, "ledger_consistent": cached.LedgerConsistent(), "cached": true})
		return
	}

	st, err := h.Store.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Cache.Set(ctx, st); err != nil {
		log.Warn("не удалось сохранить статистику в кэш", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"stats": st, "ledger_consistent": st.LedgerConsistent(), "cached": false})
}

// ReconcileHandler прогоняет присланную пачку транзакций через движок
func (h *Handlers) ReconcileHandler(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.Engine.Run(c.Request.Context(), req.Transactions)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateStats(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// ReferralLedgerHandler сверяет кэшированный баланс пользователя с суммой по журналу
func (h *Handlers) ReferralLedgerHandler(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.Store.GetUser(ctx, c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	ledger, err := h.Store.LedgerBalance(ctx, u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ledger != u.ReferralBalance {
		logging.Named("referral").Error("❌ Баланс расходится с журналом",
			zap.String("user_id", u.ID), zap.Int64("balance", u.ReferralBalance), zap.Int64("ledger", ledger))
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":        u.ID,
		"balance":        u.ReferralBalance,
		"ledger_balance": ledger,
		"consistent":     ledger == u.ReferralBalance,
		"payout_pending": u.PayoutPending,
	})
}

func (h *Handlers) ApprovePayoutHandler(c *gin.Context) {
	entry, err := h.Referrals.ApprovePayout(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateStats(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "withdrawal": entry})
}

func (h *Handlers) PendingNotificationsHandler(c *gin.Context) {
	limit := defaultPendingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxPendingLimit)
	}

	list, err := h.Store.PendingNotifications(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *Handlers) ConfirmNotificationHandler(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Final() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be sent or failed"})
		return
	}

	updated, err := h.Store.ConfirmNotification(c.Request.Context(), c.Param("id"), req.Status, req.Error)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

func (h *Handlers) invalidateStats(c *gin.Context) {
	if err := h.Cache.Invalidate(c.Request.Context()); err != nil {
		logging.Named("stats").Warn("не удалось сбросить кэш статистики", zap.Error(err))
	}
}
