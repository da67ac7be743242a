package handlers

import (
	"errors"
	"net/http"

	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"github.com/gin-gonic/gin"
)

// AdminApproveOrderHandler – ручное подтверждение (оплата пришла мимо кабинета мерчанта)
func (h *Handlers) AdminApproveOrderHandler(c *gin.Context) {
	approval, err := h.Engine.ApproveOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateStats(c)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"order":      approval.Order,
		"plan":       approval.Activation.Plan,
		"expires_at": approval.Activation.ExpiresAt,
		"referral":   approval.Bonus,
	})
}

func (h *Handlers) AdminRejectOrderHandler(c *gin.Context) {
	order, err := h.Engine.RejectOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidateStats(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// AdminRunReconcileHandler запускает прогон вне расписания; занятый планировщик – 409
func (h *Handlers) AdminRunReconcileHandler(c *gin.Context) {
	if h.Scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is disabled"})
		return
	}
	report, err := h.Scheduler.RunOnce(c.Request.Context())
	if errors.Is(err, services.ErrRunInProgress) {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	h.invalidateStats(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}
