package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/provider"
	"github.com/jwalitptl/homecare-notify/internal/repository"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
	"github.com/jwalitptl/homecare-notify/pkg/messaging"
	"github.com/jwalitptl/homecare-notify/pkg/metrics"
)

type ProcessorConfig struct {
	// RetryDelay pushes a retried job's scheduled_for out by RetryDelay × attempts.
	// Zero makes it due again on the next run.
	RetryDelay  time.Duration
	Concurrency int
}

// ProcessResult summarises one ProcessBatch call. Failed counts every failed attempt;
// Retried is the subset that went back to pending. Deferred jobs never reached their
// provider and are not counted as processed.
type ProcessResult struct {
	Processed        int                      `json:"processed"`
	Sent             int                      `json:"sent"`
	Failed           int                      `json:"failed"`
	Retried          int                      `json:"retried"`
	Skipped          int                      `json:"skipped"`
	Deferred         int                      `json:"deferred"`
	BatchesCompleted int64                    `json:"batches_completed"`
	Errors           []string                 `json:"errors"`
	Providers        provider.ProvidersStatus `json:"providers"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeRetried
	outcomeFailed
	outcomeDeferred
	// outcomeError is a persistence failure after the job was claimed.
	outcomeError
	outcomeClaimError
)

// Processor delivers due queue jobs through the configured providers.
type Processor struct {
	queue     repository.QueueRepository
	logs      repository.BatchLogRepository
	providers *provider.Registry
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	config    ProcessorConfig
	now       func() time.Time
}

func NewProcessor(
	queue repository.QueueRepository,
	logs repository.BatchLogRepository,
	providers *provider.Registry,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
	config ProcessorConfig,
) *Processor {
	if config.RetryDelay < 0 {
		panic("RetryDelay must not be negative")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Processor{
		queue:     queue,
		logs:      logs,
		providers: providers,
		publisher: publisher,
		metrics:   m,
		logger:    log.With("queue-processor"),
		config:    config,
		now:       time.Now,
	}
}

// PendingCount returns the number of jobs due now.
func (p *Processor) PendingCount(ctx context.Context) (int64, error) {
	return p.queue.CountDue(ctx, p.now().UTC())
}

// Sweep returns jobs stuck in processing for longer than olderThan to the queue, or fails
// them when they have no attempts left.
func (p *Processor) Sweep(ctx context.Context, olderThan time.Duration) (int64, int64, error) {
	now := p.now().UTC()
	requeued, failed, err := p.queue.RequeueStuck(ctx, now.Add(-olderThan), now)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("requeue_stuck", "error").Inc()
		return 0, 0, err
	}
	p.metrics.DatabaseOperations.WithLabelValues("requeue_stuck", "success").Inc()
	if requeued+failed > 0 {
		p.metrics.JobsRequeued.Add(float64(requeued + failed))
		p.logger.Warn("Reclaimed stuck notification jobs", "requeued", requeued, "failed", failed)
	}
	return requeued, failed, nil
}

// ProcessBatch attempts up to maxItems due jobs in scheduled order. A failure on one job
// is recorded in the result and never stops the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context, maxItems int) (*ProcessResult, error) {
	timer := prometheus.NewTimer(p.metrics.BatchDuration)
	defer timer.ObserveDuration()

	result := &ProcessResult{
		Errors:    []string{},
		Providers: p.providers.Status(),
	}
	if maxItems <= 0 {
		return result, nil
	}

	jobs, err := p.queue.ListDue(ctx, p.now().UTC(), maxItems)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("list_due", "error").Inc()
		return nil, fmt.Errorf("failed to get due jobs: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("list_due", "success").Inc()

	var mu sync.Mutex
	record := func(o outcome, errMsg string) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeSkipped:
			result.Skipped++
			return
		case outcomeClaimError:
			result.Errors = append(result.Errors, errMsg)
			return
		case outcomeDeferred:
			result.Deferred++
			if errMsg != "" {
				result.Errors = append(result.Errors, errMsg)
			}
			return
		case outcomeSent:
			result.Sent++
		case outcomeRetried:
			result.Failed++
			result.Retried++
		case outcomeFailed:
			result.Failed++
		}
		result.Processed++
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
		}
	}

	if p.config.Concurrency == 1 {
		for _, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			record(p.processJob(ctx, job))
		}
	} else {
		sem := make(chan struct{}, p.config.Concurrency)
		var wg sync.WaitGroup
		for _, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(job *model.DueJob) {
				defer func() {
					<-sem
					wg.Done()
				}()
				record(p.processJob(ctx, job))
			}(job)
		}
		wg.Wait()
	}

	if result.Processed > 0 {
		completed, err := p.logs.Reconcile(ctx)
		if err != nil {
			p.logger.Error(err, "Failed to reconcile notification batches")
			result.Errors = append(result.Errors, fmt.Sprintf("reconcile: %v", err))
		} else {
			result.BatchesCompleted = completed
		}
	}

	p.logger.Info("Processed notification batch",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
		"retried", result.Retried,
		"skipped", result.Skipped,
		"deferred", result.Deferred)

	if result.Processed > 0 {
		p.publish(ctx, messaging.EventProcessingSummary, map[string]interface{}{
			"processed": result.Processed,
			"sent":      result.Sent,
			"failed":    result.Failed,
		})
	}
	return result, nil
}

func (p *Processor) processJob(ctx context.Context, job *model.DueJob) (outcome, string) {
	attempts, ok, err := p.queue.Claim(ctx, job.ID, p.now().UTC())
	if err != nil {
		p.logger.Error(err, "Failed to claim job", "job_id", job.ID.String())
		return outcomeClaimError, fmt.Sprintf("job %s: claim: %v", job.ID, err)
	}
	if !ok {
		p.metrics.JobsSkipped.Inc()
		return outcomeSkipped, ""
	}
	job.Attempts = attempts

	res := p.send(ctx, job)
	if res.Success {
		if err := p.queue.MarkSent(ctx, job.ID, res.MessageID, p.now().UTC()); err != nil {
			p.logger.Error(err, "Failed to mark job sent", "job_id", job.ID.String())
			return outcomeError, fmt.Sprintf("job %s: mark sent: %v", job.ID, err)
		}
		p.metrics.JobsSent.WithLabelValues(string(job.Channel)).Inc()
		p.publish(ctx, messaging.EventJobSent, map[string]interface{}{
			"job_id":     job.ID,
			"batch_id":   job.BatchID,
			"channel":    job.Channel,
			"message_id": res.MessageID,
		})
		return outcomeSent, ""
	}

	errMsg := res.Error
	if errMsg == "" {
		errMsg = "unknown provider error"
	}
	line := fmt.Sprintf("job %s (%s): %s", job.ID, job.ContactName, errMsg)

	if res.NotAttempted() {
		if err := p.queue.Release(ctx, job.ID, errMsg, p.now().UTC().Add(res.RetryAfter)); err != nil {
			p.logger.Error(err, "Failed to release job", "job_id", job.ID.String())
			return outcomeError, fmt.Sprintf("job %s: release: %v", job.ID, err)
		}
		p.metrics.JobsDeferred.WithLabelValues(string(job.Channel)).Inc()
		return outcomeDeferred, line
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}

	if attempts >= maxAttempts {
		if err := p.queue.MarkFailed(ctx, job.ID, errMsg, p.now().UTC()); err != nil {
			p.logger.Error(err, "Failed to mark job failed", "job_id", job.ID.String())
			return outcomeError, fmt.Sprintf("job %s: mark failed: %v", job.ID, err)
		}
		p.metrics.JobsFailed.WithLabelValues(string(job.Channel)).Inc()
		p.logger.Warn("Notification job failed",
			"job_id", job.ID.String(),
			"attempts", attempts,
			"error", errMsg)
		p.publish(ctx, messaging.EventJobFailed, map[string]interface{}{
			"job_id":   job.ID,
			"batch_id": job.BatchID,
			"channel":  job.Channel,
			"error":    errMsg,
		})
		return outcomeFailed, line
	}

	next := p.now().UTC().Add(p.config.RetryDelay * time.Duration(attempts))
	if err := p.queue.MarkRetry(ctx, job.ID, errMsg, next); err != nil {
		p.logger.Error(err, "Failed to requeue job", "job_id", job.ID.String())
		return outcomeError, fmt.Sprintf("job %s: requeue: %v", job.ID, err)
	}
	p.metrics.JobsRetried.WithLabelValues(string(job.Channel)).Inc()
	return outcomeRetried, line
}

func (p *Processor) send(ctx context.Context, job *model.DueJob) provider.Result {
	to := job.Address()

	switch job.Channel {
	case model.ChannelSMS:
		if to == "" {
			return provider.Result{Error: "contact has no phone number"}
		}
		sender := p.providers.SMS
		timer := prometheus.NewTimer(p.metrics.SendLatency.WithLabelValues(string(job.Channel), sender.Name()))
		defer timer.ObserveDuration()
		return sender.SendSMS(ctx, provider.SMSMessage{To: to, Body: job.Body})
	case model.ChannelEmail:
		if to == "" {
			return provider.Result{Error: "contact has no email address"}
		}
		subject := ""
		if job.Subject != nil {
			subject = *job.Subject
		}
		sender := p.providers.Email
		timer := prometheus.NewTimer(p.metrics.SendLatency.WithLabelValues(string(job.Channel), sender.Name()))
		defer timer.ObserveDuration()
		return sender.SendEmail(ctx, provider.EmailMessage{To: to, Subject: subject, Body: job.Body})
	}
	return provider.Result{Error: fmt.Sprintf("unsupported channel %q", job.Channel)}
}

func (p *Processor) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := p.publisher.Publish(ctx, eventType, payload); err != nil {
		p.logger.Warn("Failed to publish notification event", "event", eventType, "error", err.Error())
	}
}
