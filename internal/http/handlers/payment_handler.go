package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/career-marketplace/internal/http/handlers/common"
	"github.com/ignatzorin/career-marketplace/internal/service"
)

// PaymentHandler оплата задачи и удержание средств в эскроу.
type PaymentHandler struct {
	escrow *service.EscrowService
}

// NewPaymentHandler создаёт новый хэндлер.
func NewPaymentHandler(escrow *service.EscrowService) *PaymentHandler {
	return &PaymentHandler{escrow: escrow}
}

// CreatePaymentIntent POST /tasks/:id/payment-intent
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор задачи")
		return
	}

	result, err := h.escrow.CreatePaymentIntent(c.Request.Context(), userID, taskID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// HoldPayment POST /tasks/:id/escrow
func (h *PaymentHandler) HoldPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор задачи")
		return
	}

	var req service.HoldInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "bid_id и external_payment_ref обязательны")
		return
	}

	held, err := h.escrow.HoldPaymentInEscrow(c.Request.Context(), userID, taskID, req)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, held)
}

// ListPayments GET /tasks/:id/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор задачи")
		return
	}

	payments, err := h.escrow.ListTaskPayments(c.Request.Context(), userID, taskID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
