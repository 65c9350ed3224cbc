package notification

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/handler"
	"github.com/jwalitptl/homecare-notify/internal/middleware"
	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/provider"
	notificationService "github.com/jwalitptl/homecare-notify/internal/service/notification"
)

type Service interface {
	Compose(ctx context.Context, admin *model.Admin, req notificationService.ComposeRequest) (*notificationService.ComposeResult, error)
	ListQueue(ctx context.Context, filter model.QueueFilter) (*model.Page[*model.QueueItem], error)
	ListLogs(ctx context.Context, p model.Pagination) (*model.Page[*model.BatchLog], error)
	Stats(ctx context.Context) (*model.QueueStats, error)
	ProviderStatus() provider.ProvidersStatus
	CancelJob(ctx context.Context, admin *model.Admin, id uuid.UUID) error
	RetryJob(ctx context.Context, admin *model.Admin, id uuid.UUID) error
	ClearFailed(ctx context.Context, admin *model.Admin) (int64, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("/compose", h.Compose)
		notifications.GET("/queue", h.ListQueue)
		notifications.DELETE("/queue/failed", h.ClearFailed)
		notifications.DELETE("/queue/:id", h.CancelJob)
		notifications.POST("/queue/:id/retry", h.RetryJob)
		notifications.GET("/logs", h.ListLogs)
		notifications.GET("/stats", h.Stats)
		notifications.GET("/providers", h.Providers)
	}
}

type listQueueQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending processing sent failed"`
	model.Pagination
}

// Compose queues one notification per eligible recipient. The gin context is passed as
// the service context so the audit entry can read the client address.
func (h *Handler) Compose(c *gin.Context) {
	var req notificationService.ComposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.service.Compose(c, middleware.AdminFrom(c), req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(res))
}

func (h *Handler) ListQueue(c *gin.Context) {
	var q listQueueQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	page, err := h.service.ListQueue(c, model.QueueFilter{
		Status:     model.QueueStatus(q.Status),
		Pagination: q.Pagination,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func (h *Handler) ListLogs(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		respondBindError(c, err)
		return
	}

	page, err := h.service.ListLogs(c, p)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

func (h *Handler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.ProviderStatus()))
}

func (h *Handler) CancelJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.CancelJob(c, middleware.AdminFrom(c), id); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id, "cancelled": true}))
}

func (h *Handler) RetryJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.RetryJob(c, middleware.AdminFrom(c), id); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id, "retried": true}))
}

func (h *Handler) ClearFailed(c *gin.Context) {
	n, err := h.service.ClearFailed(c, middleware.AdminFrom(c))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": n}))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid job ID"))
		return uuid.Nil, false
	}
	return id, true
}

func respondBindError(c *gin.Context, err error) {
	resp := handler.NewErrorResponse("invalid request")
	if fields := middleware.ValidationErrors(err); fields != nil {
		resp.Errors = fields
	} else {
		resp.Message = "invalid request: " + err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
