package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/homecare-notify/pkg/circuitbreaker"
)

// errSendFailed carries a failed Result through the circuit breaker.
type errSendFailed struct {
	msg      string
	rejected bool
}

func (e errSendFailed) Error() string { return e.msg }

// providerFault counts only failures that say something about the provider itself.
func providerFault(err error) bool {
	var failed errSendFailed
	if errors.As(err, &failed) {
		return !failed.rejected
	}
	return true
}

// guard throttles calls to a real provider and stops calling it while it keeps failing.
type guard struct {
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func newGuard(name string, perSecond float64, burst int) guard {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return guard{
		limiter: rate.NewLimiter(limit, burst),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        name,
			MaxFailures: 5,
			IsFailure:   providerFault,
		}),
	}
}

func (g guard) do(ctx context.Context, send func() Result) Result {
	if err := g.limiter.Wait(ctx); err != nil {
		return failure(fmt.Sprintf("rate limit wait: %v", err))
	}

	var res Result
	err := g.breaker.Execute(func() error {
		res = send()
		if !res.Success {
			return errSendFailed{msg: res.Error, rejected: res.Rejected}
		}
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		res = failure(fmt.Sprintf("%s unavailable: %v", g.breaker.Name(), err))
		res.RetryAfter = g.breaker.RetryIn()
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Second
		}
	}
	return res
}

type guardedEmail struct {
	EmailSender
	guard guard
}

// GuardEmail wraps sender with a rate limiter and a circuit breaker.
func GuardEmail(sender EmailSender, perSecond float64, burst int) EmailSender {
	return &guardedEmail{EmailSender: sender, guard: newGuard("email provider "+sender.Name(), perSecond, burst)}
}

func (g *guardedEmail) SendEmail(ctx context.Context, msg EmailMessage) Result {
	return g.guard.do(ctx, func() Result { return g.EmailSender.SendEmail(ctx, msg) })
}

type guardedSMS struct {
	SMSSender
	guard guard
}

func GuardSMS(sender SMSSender, perSecond float64, burst int) SMSSender {
	return &guardedSMS{SMSSender: sender, guard: newGuard("sms provider "+sender.Name(), perSecond, burst)}
}

func (g *guardedSMS) SendSMS(ctx context.Context, msg SMSMessage) Result {
	return g.guard.do(ctx, func() Result { return g.SMSSender.SendSMS(ctx, msg) })
}
