package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type PayoutRequest struct {
	Account string `json:"account" binding:"required"` // банк и номер счёта / e-wallet
}

// RequestPayoutHandler – пользователь просит вывести реферальный баланс
func (h *Handlers) RequestPayoutHandler(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Referrals.RequestPayout(c.Request.Context(), c.GetString("userID"), req.Account)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":        true,
		"balance":        user.ReferralBalance,
		"payout_pending": user.PayoutPending,
	})
}
