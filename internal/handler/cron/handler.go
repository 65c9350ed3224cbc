package cron

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/homecare-notify/internal/handler"
	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/provider"
	"github.com/jwalitptl/homecare-notify/internal/worker"
	apperrors "github.com/jwalitptl/homecare-notify/pkg/errors"
)

const (
	ActionRunOnce      = ""
	ActionStartPolling = "start-polling"
	ActionStopPolling  = "stop-polling"
)

type Scheduler interface {
	RunOnce(ctx context.Context, batchSize int) (*worker.RunResult, error)
	StartPolling() bool
	StopPolling() bool
	Status() worker.Status
}

type StatusSource interface {
	Stats(ctx context.Context) (*model.QueueStats, error)
	ProviderStatus() provider.ProvidersStatus
}

type Config struct {
	DefaultBatch int
	MaxBatch     int
}

// Handler lets an external scheduler drive the queue processor.
type Handler struct {
	scheduler Scheduler
	status    StatusSource
	config    Config
}

func NewHandler(scheduler Scheduler, status StatusSource, config Config) *Handler {
	if config.DefaultBatch <= 0 {
		config.DefaultBatch = 20
	}
	if config.MaxBatch < config.DefaultBatch {
		config.MaxBatch = config.DefaultBatch
	}
	return &Handler{scheduler: scheduler, status: status, config: config}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/process-notifications", h.Process)
	r.GET("/process-notifications", h.Status)
}

func (h *Handler) Process(c *gin.Context) {
	action := c.Query("action")

	batch := h.config.DefaultBatch
	if raw := c.Query("batch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.config.MaxBatch {
			handler.RespondError(c, apperrors.BadRequest("batch must be between 1 and "+strconv.Itoa(h.config.MaxBatch), err))
			return
		}
		batch = n
	}

	var result interface{}
	switch action {
	case ActionRunOnce:
		res, err := h.scheduler.RunOnce(c.Request.Context(), batch)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		result = res
	case ActionStartPolling:
		result = gin.H{"started": h.scheduler.StartPolling(), "worker": h.scheduler.Status()}
	case ActionStopPolling:
		result = gin.H{"stopped": h.scheduler.StopPolling(), "worker": h.scheduler.Status()}
	default:
		handler.RespondError(c, apperrors.BadRequest("unknown action "+strconv.Quote(action), nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"action":    actionName(action),
		"result":    result,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) Status(c *gin.Context) {
	stats, err := h.status.Stats(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":     stats,
		"providers": h.status.ProviderStatus(),
		"worker":    h.scheduler.Status(),
		"timestamp": time.Now().UTC(),
	})
}

func actionName(action string) string {
	if action == ActionRunOnce {
		return "run-once"
	}
	return action
}
