package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/model"
)

// memStore is an in-memory stand-in for the postgres repositories.
type memStore struct {
	mu       sync.Mutex
	contacts []*model.Contact
	jobs     map[uuid.UUID]*model.QueueJob
	logs     []*model.BatchLog
	audits   []*model.AuditLog

	enqueueErr  error
	listBarrier *sync.WaitGroup
}

func newMemStore(contacts ...*model.Contact) *memStore {
	return &memStore{contacts: contacts, jobs: map[uuid.UUID]*model.QueueJob{}}
}

func strPtr(s string) *string { return &s }

func contact(name string, typ model.ContactType, pref model.NotificationPref, active bool, phone, email string) *model.Contact {
	c := &model.Contact{ID: uuid.New(), Name: name, Type: typ, NotificationPref: pref, IsActive: active}
	if phone != "" {
		c.Phone = strPtr(phone)
	}
	if email != "" {
		c.Email = strPtr(email)
	}
	return c
}

// ListEligible applies only the filter so the resolver's own eligibility check is exercised.
func (s *memStore) ListEligible(_ context.Context, _ model.Channel, filter model.RecipientFilter) ([]*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Contact
	for _, c := range s.contacts {
		switch {
		case len(filter.IDs) > 0:
			for _, id := range filter.IDs {
				if id == c.ID {
					out = append(out, c)
				}
			}
		case filter.Type == model.RecipientFilterAll || string(c.Type) == filter.Type:
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) addJob(j *model.QueueJob) *model.QueueJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = model.DefaultMaxAttempts
	}
	if j.Status == "" {
		j.Status = model.QueueStatusPending
	}
	s.jobs[j.ID] = j
	return j
}

func (s *memStore) job(id uuid.UUID) model.QueueJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) EnqueueBatch(_ context.Context, batch *model.BatchLog, jobs []*model.QueueJob, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.logs = append(s.logs, batch)
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	if entry != nil {
		s.audits = append(s.audits, entry)
	}
	return nil
}

func (s *memStore) ListDue(_ context.Context, now time.Time, limit int) ([]*model.DueJob, error) {
	s.mu.Lock()
	var due []*model.DueJob
	for _, j := range s.jobs {
		if j.Status != model.QueueStatusPending || j.ScheduledFor.After(now) {
			continue
		}
		d := &model.DueJob{QueueJob: *j}
		for _, c := range s.contacts {
			if c.ID == j.ContactID {
				d.ContactName = c.Name
				d.ContactPhone = c.Phone
				d.ContactEmail = c.Email
			}
		}
		due = append(due, d)
	}
	s.mu.Unlock()

	sort.Slice(due, func(a, b int) bool {
		if !due[a].ScheduledFor.Equal(due[b].ScheduledFor) {
			return due[a].ScheduledFor.Before(due[b].ScheduledFor)
		}
		return due[a].ID.String() < due[b].ID.String()
	})
	if len(due) > limit {
		due = due[:limit]
	}

	if s.listBarrier != nil {
		s.listBarrier.Done()
		s.listBarrier.Wait()
	}
	return due, nil
}

func (s *memStore) Claim(_ context.Context, id uuid.UUID, now time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.QueueStatusPending {
		return 0, false, nil
	}
	j.Status = model.QueueStatusProcessing
	j.Attempts++
	j.ClaimedAt = &now
	return j.Attempts, true, nil
}

func (s *memStore) transition(id uuid.UUID, fn func(j *model.QueueJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.QueueStatusProcessing {
		return errors.New("job is no longer processing")
	}
	fn(j)
	j.ClaimedAt = nil
	return nil
}

func (s *memStore) MarkSent(_ context.Context, id uuid.UUID, providerMessageID string, now time.Time) error {
	return s.transition(id, func(j *model.QueueJob) {
		j.Status = model.QueueStatusSent
		j.SentAt = &now
		j.ErrorMessage = nil
		j.ProviderMessageID = &providerMessageID
	})
}

func (s *memStore) MarkRetry(_ context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	return s.transition(id, func(j *model.QueueJob) {
		j.Status = model.QueueStatusPending
		j.ErrorMessage = &errMsg
		j.ScheduledFor = next
	})
}

func (s *memStore) Release(_ context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	return s.transition(id, func(j *model.QueueJob) {
		j.Status = model.QueueStatusPending
		if j.Attempts > 0 {
			j.Attempts--
		}
		j.ErrorMessage = &errMsg
		j.ScheduledFor = next
	})
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, _ time.Time) error {
	return s.transition(id, func(j *model.QueueJob) {
		j.Status = model.QueueStatusFailed
		j.ErrorMessage = &errMsg
	})
}

func (s *memStore) RequeueStuck(_ context.Context, claimedBefore, _ time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var requeued, failed int64
	for _, j := range s.jobs {
		if j.Status != model.QueueStatusProcessing || j.ClaimedAt == nil || !j.ClaimedAt.Before(claimedBefore) {
			continue
		}
		msg := "processing timed out"
		j.ErrorMessage = &msg
		j.ClaimedAt = nil
		if j.Attempts >= j.MaxAttempts {
			j.Status = model.QueueStatusFailed
			failed++
		} else {
			j.Status = model.QueueStatusPending
			requeued++
		}
	}
	return requeued, failed, nil
}

func (s *memStore) CountDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.Status == model.QueueStatusPending && !j.ScheduledFor.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Stats(context.Context) (*model.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &model.QueueStats{}
	for _, j := range s.jobs {
		switch j.Status {
		case model.QueueStatusPending:
			st.Pending++
		case model.QueueStatusProcessing:
			st.Processing++
		case model.QueueStatusSent:
			st.Sent++
		case model.QueueStatusFailed:
			st.Failed++
		}
		st.Total++
	}
	return st, nil
}

func (s *memStore) List(_ context.Context, filter model.QueueFilter) ([]*model.QueueItem, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*model.QueueItem
	for _, j := range s.jobs {
		if filter.Status == "" || j.Status == filter.Status {
			items = append(items, &model.QueueItem{QueueJob: *j})
		}
	}
	total := int64(len(items))
	start := filter.Offset()
	if start > len(items) {
		start = len(items)
	}
	end := start + filter.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total, nil
}

func (s *memStore) Cancel(_ context.Context, id uuid.UUID, entry *model.AuditLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.QueueStatusPending {
		return false, nil
	}
	delete(s.jobs, id)
	s.audits = append(s.audits, entry)
	return true, nil
}

func (s *memStore) Retry(_ context.Context, id uuid.UUID, now time.Time, entry *model.AuditLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.QueueStatusFailed {
		return false, nil
	}
	j.Status = model.QueueStatusPending
	j.Attempts = 0
	j.ErrorMessage = nil
	j.ScheduledFor = now
	s.audits = append(s.audits, entry)
	return true, nil
}

func (s *memStore) ClearFailed(_ context.Context, entry func(int64) (*model.AuditLog, error)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []uuid.UUID
	for id, j := range s.jobs {
		if j.Status == model.QueueStatusFailed {
			failed = append(failed, id)
		}
	}
	if entry != nil {
		log, err := entry(int64(len(failed)))
		if err != nil {
			return 0, err
		}
		s.audits = append(s.audits, log)
	}
	for _, id := range failed {
		delete(s.jobs, id)
	}
	return int64(len(failed)), nil
}

func (s *memStore) Reconcile(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var completed int64
	for _, l := range s.logs {
		if l.Status == model.QueueStatusSent {
			continue
		}
		outstanding, finished := 0, 0
		for _, j := range s.jobs {
			if j.BatchID == nil || *j.BatchID != l.ID {
				continue
			}
			if j.Status == model.QueueStatusPending || j.Status == model.QueueStatusProcessing {
				outstanding++
			} else {
				finished++
			}
		}
		switch {
		case outstanding == 0:
			l.Status = model.QueueStatusSent
			completed++
		case finished > 0:
			l.Status = model.QueueStatusProcessing
		}
	}
	return completed, nil
}

// memLogs exposes the batch log view of a memStore.
type memLogs struct {
	*memStore
}

func (l memLogs) List(_ context.Context, p model.Pagination) ([]*model.BatchLog, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.BatchLog(nil), l.logs...), int64(len(l.logs)), nil
}

// memAudit exposes the audit view of a memStore.
type memAudit struct {
	*memStore
}

func (a memAudit) Create(_ context.Context, log *model.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits = append(a.audits, log)
	return nil
}

func (a memAudit) Cleanup(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (a memAudit) List(_ context.Context, f model.AuditFilter) ([]*model.AuditLog, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*model.AuditLog(nil), a.audits...), int64(len(a.audits)), nil
}
