package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/homecare-notify/internal/service/notification"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
)

// BatchProcessor is the part of the queue processor the scheduler drives.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, maxItems int) (*notification.ProcessResult, error)
	Sweep(ctx context.Context, olderThan time.Duration) (requeued, failed int64, err error)
	PendingCount(ctx context.Context) (int64, error)
}

type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	StuckTimeout time.Duration
}

// RunResult is returned by RunOnce. Result is nil when Busy is set.
type RunResult struct {
	Busy     bool                        `json:"busy"`
	Requeued int64                       `json:"requeued"`
	TimedOut int64                       `json:"timed_out"`
	Result   *notification.ProcessResult `json:"result,omitempty"`
}

type Status struct {
	IsRunning      bool       `json:"is_running"`
	IsPolling      bool       `json:"is_polling"`
	LastRun        *time.Time `json:"last_run"`
	PollIntervalMS int64      `json:"poll_interval_ms"`
	BatchSize      int        `json:"batch_size"`
}

// Scheduler runs the queue processor on demand or on an interval. One instance is owned
// by the process and shared by every caller.
type Scheduler struct {
	processor BatchProcessor
	config    SchedulerConfig
	logger    *logger.Logger
	schedule  cron.Schedule

	ctx    context.Context
	cancel context.CancelFunc

	inflight sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	closed    bool
	lastRun   *time.Time
	poller    *cron.Cron
}

// ErrClosed is returned by RunOnce after Close.
var ErrClosed = errors.New("scheduler is closed")

func NewScheduler(processor BatchProcessor, config SchedulerConfig, log *logger.Logger) *Scheduler {
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.StuckTimeout <= 0 {
		panic("StuckTimeout must be greater than 0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		processor: processor,
		config:    config,
		logger:    log.With("scheduler"),
		schedule:  scheduleEvery(config.PollInterval),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// fixedDelay is a constant-delay schedule without cron.Every's one second rounding.
type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

func scheduleEvery(d time.Duration) cron.Schedule {
	if d < time.Second {
		return fixedDelay(d)
	}
	return cron.Every(d)
}

// RunOnce sweeps stuck jobs and processes one batch. A call made while another run is in
// progress returns immediately with Busy set. batchSize 0 uses the configured default.
func (s *Scheduler) RunOnce(ctx context.Context, batchSize int) (*RunResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.isRunning {
		s.mu.Unlock()
		return &RunResult{Busy: true}, nil
	}
	s.isRunning = true
	s.inflight.Add(1)
	s.mu.Unlock()

	defer func() {
		now := time.Now().UTC()
		s.mu.Lock()
		s.isRunning = false
		s.lastRun = &now
		s.mu.Unlock()
		s.inflight.Done()
	}()

	if batchSize <= 0 {
		batchSize = s.config.BatchSize
	}

	out := &RunResult{}
	requeued, failed, err := s.processor.Sweep(ctx, s.config.StuckTimeout)
	if err != nil {
		s.logger.Error(err, "Failed to sweep stuck jobs")
	} else {
		out.Requeued = requeued
		out.TimedOut = failed
	}

	result, err := s.processor.ProcessBatch(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	out.Result = result
	return out, nil
}

// StartPolling begins interval polling. It reports false when polling was already on.
func (s *Scheduler) StartPolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poller != nil || s.closed {
		return false
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	c.Schedule(s.schedule, cron.FuncJob(s.tick))
	c.Start()
	s.poller = c

	s.logger.Info("Notification polling started", "interval", s.config.PollInterval.String())
	return true
}

// StopPolling stops interval polling. It reports whether a poller was running.
func (s *Scheduler) StopPolling() bool {
	s.mu.Lock()
	c := s.poller
	s.poller = nil
	s.mu.Unlock()

	if c == nil {
		return false
	}
	c.Stop()
	s.logger.Info("Notification polling stopped")
	return true
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastRun *time.Time
	if s.lastRun != nil {
		t := *s.lastRun
		lastRun = &t
	}
	return Status{
		IsRunning:      s.isRunning,
		IsPolling:      s.poller != nil,
		LastRun:        lastRun,
		PollIntervalMS: s.config.PollInterval.Milliseconds(),
		BatchSize:      s.config.BatchSize,
	}
}

// Close stops polling, cancels in-flight work and waits for a running batch to return.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	c := s.poller
	s.poller = nil
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	pending, err := s.processor.PendingCount(s.ctx)
	if err != nil {
		s.logger.Error(err, "Failed to count pending jobs")
		return
	}
	if pending == 0 {
		// Reclaimed jobs are due on the next tick.
		if _, _, err := s.processor.Sweep(s.ctx, s.config.StuckTimeout); err != nil {
			s.logger.Error(err, "Failed to sweep stuck jobs")
		}
		return
	}

	res, err := s.RunOnce(s.ctx, 0)
	if errors.Is(err, ErrClosed) {
		return
	}
	if err != nil {
		s.logger.Error(err, "Scheduled notification run failed")
		return
	}
	if res.Busy {
		s.logger.Debug("Skipped scheduled run, processor busy")
	}
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(err, msg, keysAndValues...)
}
