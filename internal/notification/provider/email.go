package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/platform/config"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// EmailSender delivers messages over SMTP via go-mail.
type EmailSender struct {
	client    mailClient
	fromName  string
	fromEmail string
	idDomain  string
}

// NewEmailSender builds an SMTP sender from the EMAIL settings.
func NewEmailSender(cfg config.EmailConfig) (*EmailSender, error) {
	client, err := gomail.NewClient(cfg.GetSMTPHost(),
		gomail.WithPort(cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.GetSMTPUsername()),
		gomail.WithPassword(cfg.GetSMTPPassword()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return newEmailSender(client, cfg.GetEmailFromName(), cfg.GetEmailFromAddress()), nil
}

func newEmailSender(client mailClient, fromName, fromEmail string) *EmailSender {
	domain := "localhost"
	if at := strings.LastIndex(fromEmail, "@"); at >= 0 && at < len(fromEmail)-1 {
		domain = fromEmail[at+1:]
	}
	return &EmailSender{client: client, fromName: fromName, fromEmail: fromEmail, idDomain: domain}
}

func (s *EmailSender) Send(ctx context.Context, m Message) (Receipt, error) {
	content, err := Render(m.TemplateID, m.Payload)
	if err != nil {
		return Receipt{}, err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return Receipt{}, Permanent(fmt.Errorf("smtp from: %w", err))
	}
	if err := msg.To(m.Recipient); err != nil {
		return Receipt{}, Permanent(fmt.Errorf("smtp to: %w", err))
	}
	deliveryID := uuid.NewString()
	msg.SetGenHeader(gomail.HeaderMessageID, "<"+deliveryID+"@"+s.idDomain+">")
	msg.Subject(content.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, content.Text)
	msg.AddAlternativeString(gomail.TypeTextHTML, content.HTML)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return Receipt{}, classifySMTP(err)
	}
	return Receipt{DeliveryID: deliveryID}, nil
}

// classifySMTP treats a non-temporary rejection of the recipient or the
// message body as permanent. Everything else, including 4xx replies and
// connection failures, is retried.
func classifySMTP(err error) error {
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) && !sendErr.IsTemp() {
		if sendErr.Reason == gomail.ErrSMTPRcptTo || sendErr.Reason == gomail.ErrSMTPData {
			return Permanent(fmt.Errorf("smtp send: %w", err))
		}
	}
	return Transient(fmt.Errorf("smtp send: %w", err))
}

var _ Sender = (*EmailSender)(nil)
