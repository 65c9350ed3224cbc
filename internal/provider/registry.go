package provider

import (
	"context"
	"fmt"

	"github.com/jwalitptl/homecare-notify/internal/config"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
)

// Registry holds the sender selected for each channel.
type Registry struct {
	Email EmailSender
	SMS   SMSSender
}

// NewRegistry builds senders from configuration. Unset providers fall back to the mock.
func NewRegistry(ctx context.Context, cfg config.ProvidersConfig, log *logger.Logger) (*Registry, error) {
	mock := NewMockSender(log)
	r := &Registry{Email: mock, SMS: mock}

	switch cfg.Email.Provider {
	case "", "mock":
	case "smtp":
		smtp := cfg.Email.SMTP
		if smtp.Host == "" || cfg.Email.From == "" {
			return nil, fmt.Errorf("smtp provider requires host and from address")
		}
		r.Email = GuardEmail(
			NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password, cfg.Email.From),
			cfg.Email.RatePerSecond, cfg.Email.Burst)
	case "ses":
		if cfg.Email.SES.Region == "" || cfg.Email.From == "" {
			return nil, fmt.Errorf("ses provider requires region and from address")
		}
		ses, err := NewSESSender(ctx, cfg.Email.SES.Region, cfg.Email.From)
		if err != nil {
			return nil, err
		}
		r.Email = GuardEmail(ses, cfg.Email.RatePerSecond, cfg.Email.Burst)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}

	switch cfg.SMS.Provider {
	case "", "mock":
	case "twilio":
		tw := cfg.SMS.Twilio
		if tw.AccountSID == "" || tw.AuthToken == "" || cfg.SMS.From == "" {
			return nil, fmt.Errorf("twilio provider requires account sid, auth token and from number")
		}
		r.SMS = GuardSMS(
			NewTwilioSender(tw.BaseURL, tw.AccountSID, tw.AuthToken, cfg.SMS.From, cfg.SMS.Timeout),
			cfg.SMS.RatePerSecond, cfg.SMS.Burst)
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.SMS.Provider)
	}

	return r, nil
}

func (r *Registry) Status() ProvidersStatus {
	return ProvidersStatus{
		Email: Status{Configured: r.Email.Configured(), Provider: r.Email.Name()},
		SMS:   Status{Configured: r.SMS.Configured(), Provider: r.SMS.Name()},
	}
}
