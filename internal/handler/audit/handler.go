package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/handler"
	"github.com/jwalitptl/homecare-notify/internal/model"
)

// MaxExportRows caps a single export.
const MaxExportRows = 5000

type Service interface {
	List(ctx context.Context, filter model.AuditFilter) (*model.Page[*model.AuditLog], error)
}

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
		now:     time.Now,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs", h.ListLogs)
		audit.GET("/export", h.ExportLogs)
	}
}

func (h *Handler) ListLogs(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func (h *Handler) ExportLogs(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unsupported format"))
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	var logs []*model.AuditLog
	filter.PageSize = model.MaxPageSize
	for filter.Page = 1; len(logs) < MaxExportRows; filter.Page++ {
		page, err := h.service.List(c.Request.Context(), filter)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		logs = append(logs, page.Items...)
		if filter.Page >= page.TotalPages {
			break
		}
	}
	if len(logs) > MaxExportRows {
		logs = logs[:MaxExportRows]
	}

	filename := fmt.Sprintf("audit_logs_%s.%s", h.now().UTC().Format("20060102_150405"), format)

	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		writer := csv.NewWriter(c.Writer)
		_ = writer.Write([]string{"ID", "Admin ID", "Action", "Entity Type", "Entity ID", "IP Address", "Created At"})
		for _, log := range logs {
			_ = writer.Write([]string{
				log.ID.String(),
				optionalID(log.UserID),
				log.Action,
				log.EntityType,
				optionalID(log.EntityID),
				log.IPAddress,
				log.CreatedAt.Format(time.RFC3339),
			})
		}
		writer.Flush()
	case "json":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		c.JSON(http.StatusOK, logs)
	}
}

func parseFilter(c *gin.Context) (model.AuditFilter, error) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		return model.AuditFilter{}, fmt.Errorf("invalid pagination")
	}

	filter := model.AuditFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Pagination: p,
	}

	if raw := c.Query("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid entity_id")
		}
		filter.EntityID = &id
	}
	if raw := c.Query("admin_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid admin_id")
		}
		filter.AdminID = &id
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid since, expected RFC3339")
		}
		filter.Since = &since
	}
	return filter, nil
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
