package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/career-marketplace/internal/http/handlers/common"
)

// maxWebhookBody лимит тела события, больше Stripe не присылает.
const maxWebhookBody = 65536

// WebhookProcessor проверяет подпись и применяет событие платёжного провайдера.
type WebhookProcessor interface {
	Handle(ctx context.Context, family string, payload []byte, signature string) error
}

// WebhookHandler принимает события платёжного провайдера без JWT, доверие только по подписи.
type WebhookHandler struct {
	processor WebhookProcessor
}

func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// HandleStripe POST /webhooks/stripe/:family
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать тело запроса")
		return
	}
	if len(payload) > maxWebhookBody {
		common.RespondError(c, http.StatusRequestEntityTooLarge, "слишком большое тело запроса")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := h.processor.Handle(c.Request.Context(), c.Param("family"), payload, signature); err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
