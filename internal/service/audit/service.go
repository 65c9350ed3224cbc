package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	Metadata  interface{}
	IPAddress string
	UserAgent string
}

// Entry builds an audit row without persisting it, so callers can write it inside their
// own transaction. IP address and user agent fall back to the gin request when unset.
func (s *Service) Entry(ctx context.Context, adminID *uuid.UUID, action, entityType string, entityID *uuid.UUID, opts *LogOptions) (*model.AuditLog, error) {
	if opts == nil {
		opts = &LogOptions{}
	}

	var metadata json.RawMessage
	if opts.Metadata != nil {
		b, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = b
	}

	ipAddress := opts.IPAddress
	userAgent := opts.UserAgent
	if gc, ok := ctx.(*gin.Context); ok && ipAddress == "" {
		ipAddress = gc.ClientIP()
		userAgent = gc.GetHeader("User-Agent")
	}

	return &model.AuditLog{
		ID:         uuid.New(),
		UserID:     adminID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  s.now().UTC(),
	}, nil
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, adminID *uuid.UUID, action, entityType string, entityID *uuid.UUID, opts *LogOptions) error {
	entry, err := s.Entry(ctx, adminID, action, entityType, entityID, opts)
	if err != nil {
		return err
	}
	return s.repo.Create(ctx, entry)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}

// List returns one page of the audit trail, newest first.
func (s *Service) List(ctx context.Context, filter model.AuditFilter) (*model.Page[*model.AuditLog], error) {
	filter.Pagination = filter.Pagination.Normalize()
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return model.NewPage(logs, filter.Pagination, total), nil
}
