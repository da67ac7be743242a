package handlers

import (
	"errors"
	"net/http"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError переводит доменные ошибки в HTTP-статусы
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrNotificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrOrderNotPending),
		errors.Is(err, services.ErrNoPayoutRequested),
		errors.Is(err, services.ErrPayoutAlreadyQueued),
		errors.Is(err, services.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrEmptyPayoutAccount),
		errors.Is(err, models.ErrUnknownTier):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		logging.Named("http").Error("❌ Ошибка обработки запроса",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
