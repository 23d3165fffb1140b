package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/career-marketplace/internal/http/handlers/common"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/service"
)

// PayoutHandler выплаты коучам и операторские повторы.
type PayoutHandler struct {
	payouts *service.PayoutService
}

func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// ListMyPayouts GET /payouts/my
func (h *PayoutHandler) ListMyPayouts(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	payouts, err := h.payouts.ListCoachPayouts(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// ListPayouts GET /admin/payouts?status=failed
func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	status := c.DefaultQuery("status", models.PayoutStatusFailed)
	limit, offset := common.GetPagination(c)

	payouts, err := h.payouts.ListPayoutsByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// RetryPayout POST /admin/payouts/:id/retry
func (h *PayoutHandler) RetryPayout(c *gin.Context) {
	payoutID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор выплаты")
		return
	}

	payout, err := h.payouts.RetryPayout(c.Request.Context(), payoutID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}
