package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/career-marketplace/internal/http/handlers/common"
	"github.com/ignatzorin/career-marketplace/internal/service"
)

// BidHandler обслуживает ставки коучей.
type BidHandler struct {
	market *service.MarketplaceService
}

func NewBidHandler(market *service.MarketplaceService) *BidHandler {
	return &BidHandler{market: market}
}

// CreateBid POST /tasks/:id/bids
func (h *BidHandler) CreateBid(c *gin.Context) {
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

	var req service.CreateBidInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "некорректное тело запроса: "+err.Error())
		return
	}

	bid, err := h.market.CreateBid(c.Request.Context(), userID, taskID, req)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bid)
}

// ListBids GET /tasks/:id/bids
func (h *BidHandler) ListBids(c *gin.Context) {
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

	bids, err := h.market.ListBids(c.Request.Context(), userID, taskID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

// AcceptBid POST /tasks/:id/bids/:bidId/accept
func (h *BidHandler) AcceptBid(c *gin.Context) {
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
	bidID, err := common.ParseUUIDParam(c, "bidId")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор ставки")
		return
	}

	result, err := h.market.AcceptBid(c.Request.Context(), userID, taskID, bidID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
