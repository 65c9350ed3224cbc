package provider

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// mailDialer is the part of gomail.Dialer the SMTP sender uses.
type mailDialer interface {
	Dial() (gomail.SendCloser, error)
}

type SMTPSender struct {
	dialer mailDialer
	from   string
	domain string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		domain: host,
	}
}

func (s *SMTPSender) Name() string     { return "smtp" }
func (s *SMTPSender) Configured() bool { return true }

func (s *SMTPSender) SendEmail(ctx context.Context, msg EmailMessage) Result {
	if err := ctx.Err(); err != nil {
		return failure(err.Error())
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	m.SetBody("text/plain", msg.Body)

	conn, err := s.dialer.Dial()
	if err != nil {
		return failure(fmt.Sprintf("smtp dial failed: %v", err))
	}
	defer conn.Close()

	if err := conn.Send(s.from, []string{msg.To}, m); err != nil {
		if mailboxRejected(err) {
			return rejected(fmt.Sprintf("smtp rejected recipient: %v", err))
		}
		return failure(fmt.Sprintf("smtp send failed: %v", err))
	}
	return success(id)
}

// mailboxRejected matches permanent replies about the address: bad syntax, unknown
// mailbox or a mailbox name that is not allowed.
func mailboxRejected(err error) bool {
	var reply *textproto.Error
	if !errors.As(err, &reply) {
		return false
	}
	switch reply.Code {
	case 501, 550, 551, 553:
		return true
	}
	return false
}
