package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/career-marketplace/internal/http/handlers/common"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/service"
)

// TaskHandler обслуживает маршруты задач на проверку.
type TaskHandler struct {
	market *service.MarketplaceService
}

func NewTaskHandler(market *service.MarketplaceService) *TaskHandler {
	return &TaskHandler{market: market}
}

// CreateTask POST /tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req service.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "некорректное тело запроса: "+err.Error())
		return
	}

	task, err := h.market.CreateTask(c.Request.Context(), userID, req)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// ListOpenTasks GET /tasks?type=&urgency=
func (h *TaskHandler) ListOpenTasks(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	tasks, err := h.market.ListOpenTasks(c.Request.Context(), models.TaskFilter{
		TaskType: c.Query("type"),
		Urgency:  c.Query("urgency"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListMyTasks GET /tasks/my
func (h *TaskHandler) ListMyTasks(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	tasks, err := h.market.ListClientTasks(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListAssignedTasks GET /tasks/assigned
func (h *TaskHandler) ListAssignedTasks(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	tasks, err := h.market.ListAssignedTasks(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// GetTask GET /tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
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

	task, err := h.market.GetTask(c.Request.Context(), userID, taskID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// StartTask POST /tasks/:id/start
func (h *TaskHandler) StartTask(c *gin.Context) {
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

	task, err := h.market.StartTask(c.Request.Context(), userID, taskID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// CompleteTask POST /tasks/:id/complete
func (h *TaskHandler) CompleteTask(c *gin.Context) {
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

	var req struct {
		Feedback *string `json:"feedback"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.RespondBadRequest(c, "некорректное тело запроса")
			return
		}
	}

	result, err := h.market.CompleteTask(c.Request.Context(), userID, taskID, req.Feedback)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ReleaseTask POST /tasks/:id/release повторяет расчёт по завершённой задаче.
func (h *TaskHandler) ReleaseTask(c *gin.Context) {
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

	settlement, err := h.market.ReleaseTask(c.Request.Context(), userID, taskID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlement)
}
