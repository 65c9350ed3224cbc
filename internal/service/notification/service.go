package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/provider"
	"github.com/jwalitptl/homecare-notify/internal/repository"
	"github.com/jwalitptl/homecare-notify/internal/service/audit"
	apperrors "github.com/jwalitptl/homecare-notify/pkg/errors"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
	"github.com/jwalitptl/homecare-notify/pkg/messaging"
	"github.com/jwalitptl/homecare-notify/pkg/metrics"
)

const statsCacheKey = "queue_stats"

type ComposeRequest struct {
	Channel         model.Channel         `json:"channel" binding:"required,channel"`
	Subject         string                `json:"subject"`
	Body            string                `json:"body" binding:"required"`
	RecipientFilter model.RecipientFilter `json:"recipient_filter"`
	ScheduledFor    *time.Time            `json:"scheduled_for,omitempty"`
}

type ComposeResult struct {
	Queued  int       `json:"queued"`
	BatchID uuid.UUID `json:"batch_id"`
}

type Config struct {
	MaxAttempts   int
	StatsCacheTTL time.Duration
}

// Service implements compose and the admin queue operations.
type Service struct {
	resolver  *Resolver
	queue     repository.QueueRepository
	logs      repository.BatchLogRepository
	auditor   *audit.Service
	providers *provider.Registry
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	cache     *cache.Cache
	config    Config
	now       func() time.Time
}

func NewService(
	resolver *Resolver,
	queue repository.QueueRepository,
	logs repository.BatchLogRepository,
	auditor *audit.Service,
	providers *provider.Registry,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
	config Config,
) *Service {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = model.DefaultMaxAttempts
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		resolver:  resolver,
		queue:     queue,
		logs:      logs,
		auditor:   auditor,
		providers: providers,
		publisher: publisher,
		metrics:   m,
		logger:    log.With("notification-service"),
		cache:     cache.New(config.StatsCacheTTL, time.Minute),
		config:    config,
		now:       time.Now,
	}
}

// Compose fans one message out into a queue job per eligible recipient. The batch log,
// the jobs and the audit entry are written together or not at all.
func (s *Service) Compose(ctx context.Context, admin *model.Admin, req ComposeRequest) (*ComposeResult, error) {
	if admin == nil {
		return nil, apperrors.Unauthorized(nil)
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperrors.BadRequest("body is required", nil)
	}
	if !req.Channel.IsValid() {
		return nil, apperrors.BadRequest("channel must be sms or email", nil)
	}

	var subject *string
	if req.Channel == model.ChannelEmail {
		sub := strings.TrimSpace(req.Subject)
		if sub == "" {
			return nil, apperrors.BadRequest("subject is required for email", nil)
		}
		subject = &sub
	}

	contacts, err := s.resolver.Resolve(ctx, req.Channel, req.RecipientFilter)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, apperrors.BadRequest("no eligible recipients", nil)
	}

	now := s.now().UTC()
	scheduledFor := now
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		scheduledFor = req.ScheduledFor.UTC()
	}

	adminID := admin.ID
	batch := &model.BatchLog{
		ID:              uuid.New(),
		AdminID:         &adminID,
		RecipientFilter: req.RecipientFilter.String(),
		RecipientCount:  len(contacts),
		Channel:         req.Channel,
		Subject:         subject,
		Body:            body,
		Status:          model.QueueStatusPending,
		SentAt:          now,
	}

	jobs := make([]*model.QueueJob, 0, len(contacts))
	for _, c := range contacts {
		jobs = append(jobs, &model.QueueJob{
			ID:           uuid.New(),
			BatchID:      &batch.ID,
			ContactID:    c.ID,
			Channel:      req.Channel,
			Subject:      subject,
			Body:         body,
			Status:       model.QueueStatusPending,
			Attempts:     0,
			MaxAttempts:  s.config.MaxAttempts,
			ScheduledFor: scheduledFor,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	entry, err := s.auditor.Entry(ctx, &adminID, model.AuditActionCompose, model.AuditEntityNotificationBatch, &batch.ID,
		&audit.LogOptions{Metadata: map[string]interface{}{
			"channel":         req.Channel,
			"recipient_count": len(contacts),
			"filter":          req.RecipientFilter,
		}})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.queue.EnqueueBatch(ctx, batch, jobs, entry); err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("enqueue_batch", "error").Inc()
		return nil, apperrors.Internal(err)
	}
	s.metrics.DatabaseOperations.WithLabelValues("enqueue_batch", "success").Inc()
	s.metrics.JobsComposed.WithLabelValues(string(req.Channel)).Add(float64(len(jobs)))
	s.cache.Delete(statsCacheKey)

	s.logger.Info("Notification batch composed",
		"batch_id", batch.ID.String(),
		"admin_id", adminID.String(),
		"channel", string(req.Channel),
		"recipients", len(jobs))

	if err := s.publisher.Publish(ctx, messaging.EventBatchComposed, map[string]interface{}{
		"batch_id":   batch.ID,
		"channel":    req.Channel,
		"recipients": len(jobs),
	}); err != nil {
		s.logger.Warn("Failed to publish compose event", "batch_id", batch.ID.String(), "error", err.Error())
	}

	return &ComposeResult{Queued: len(jobs), BatchID: batch.ID}, nil
}

func (s *Service) ListQueue(ctx context.Context, filter model.QueueFilter) (*model.Page[*model.QueueItem], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid status %q", filter.Status), nil)
	}
	filter.Pagination = filter.Pagination.Normalize()

	items, total, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return model.NewPage(items, filter.Pagination, total), nil
}

func (s *Service) ListLogs(ctx context.Context, p model.Pagination) (*model.Page[*model.BatchLog], error) {
	p = p.Normalize()
	logs, total, err := s.logs.List(ctx, p)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return model.NewPage(logs, p, total), nil
}

// Stats returns job counts per status, cached briefly.
func (s *Service) Stats(ctx context.Context) (*model.QueueStats, error) {
	if s.config.StatsCacheTTL > 0 {
		if v, ok := s.cache.Get(statsCacheKey); ok {
			return v.(*model.QueueStats), nil
		}
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.metrics.QueueDepth.WithLabelValues(string(model.QueueStatusPending)).Set(float64(stats.Pending))
	s.metrics.QueueDepth.WithLabelValues(string(model.QueueStatusProcessing)).Set(float64(stats.Processing))
	s.metrics.QueueDepth.WithLabelValues(string(model.QueueStatusSent)).Set(float64(stats.Sent))
	s.metrics.QueueDepth.WithLabelValues(string(model.QueueStatusFailed)).Set(float64(stats.Failed))

	if s.config.StatsCacheTTL > 0 {
		s.cache.Set(statsCacheKey, stats, s.config.StatsCacheTTL)
	}
	return stats, nil
}

func (s *Service) ProviderStatus() provider.ProvidersStatus {
	return s.providers.Status()
}

// CancelJob removes a job that has not been attempted yet.
func (s *Service) CancelJob(ctx context.Context, admin *model.Admin, id uuid.UUID) error {
	if admin == nil {
		return apperrors.Unauthorized(nil)
	}
	entry, err := s.jobEntry(ctx, admin, model.AuditActionCancel, id)
	if err != nil {
		return err
	}

	ok, err := s.queue.Cancel(ctx, id, entry)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !ok {
		return apperrors.NotFound("not found or already processed", nil)
	}
	s.cache.Delete(statsCacheKey)
	s.logger.Info("Notification job cancelled", "job_id", id.String(), "admin_id", admin.ID.String())
	return nil
}

// RetryJob gives a failed job a fresh set of attempts.
func (s *Service) RetryJob(ctx context.Context, admin *model.Admin, id uuid.UUID) error {
	if admin == nil {
		return apperrors.Unauthorized(nil)
	}
	entry, err := s.jobEntry(ctx, admin, model.AuditActionRetry, id)
	if err != nil {
		return err
	}

	ok, err := s.queue.Retry(ctx, id, s.now().UTC(), entry)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !ok {
		return apperrors.NotFound("not found or not failed", nil)
	}
	s.cache.Delete(statsCacheKey)
	s.logger.Info("Notification job retried", "job_id", id.String(), "admin_id", admin.ID.String())
	return nil
}

// ClearFailed deletes every failed job and returns how many were removed.
func (s *Service) ClearFailed(ctx context.Context, admin *model.Admin) (int64, error) {
	if admin == nil {
		return 0, apperrors.Unauthorized(nil)
	}
	adminID := admin.ID

	deleted, err := s.queue.ClearFailed(ctx, func(n int64) (*model.AuditLog, error) {
		return s.auditor.Entry(ctx, &adminID, model.AuditActionClearFailed, model.AuditEntityNotificationJob, nil,
			&audit.LogOptions{Metadata: map[string]interface{}{"deleted": n}})
	})
	if err != nil {
		return 0, apperrors.Internal(err)
	}

	s.cache.Delete(statsCacheKey)
	s.logger.Info("Failed notification jobs cleared", "deleted", deleted, "admin_id", adminID.String())
	return deleted, nil
}

func (s *Service) jobEntry(ctx context.Context, admin *model.Admin, action string, id uuid.UUID) (*model.AuditLog, error) {
	adminID := admin.ID
	jobID := id
	entry, err := s.auditor.Entry(ctx, &adminID, action, model.AuditEntityNotificationJob, &jobID, nil)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return entry, nil
}
