package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jwalitptl/homecare-notify/pkg/messaging"
)

// RunOnEvents runs a batch as soon as one of the given event types arrives, so newly
// composed jobs do not wait for the next poll. It returns when ctx is done, events is
// closed or the scheduler is closed.
func (s *Scheduler) RunOnEvents(ctx context.Context, events <-chan []byte, types ...string) {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-events:
			if !ok {
				return
			}
			var msg messaging.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn("Ignoring malformed event", "error", err.Error())
				continue
			}
			if !wanted[msg.Type] {
				continue
			}

			res, err := s.RunOnce(ctx, 0)
			if errors.Is(err, ErrClosed) {
				return
			}
			if err != nil {
				s.logger.Error(err, "Event-triggered run failed", "event", msg.Type)
				continue
			}
			if res.Busy {
				s.logger.Debug("Event-triggered run skipped, processor busy", "event", msg.Type)
			}
		}
	}
}
