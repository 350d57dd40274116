package emailsvc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/trezcool/mycourse/core"
)

// SMTP security modes
const (
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
)

const smtpTimeout = 10 * time.Second

type smtpService struct {
	conf       core.SMTPConfig
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(conf *core.Config, logger core.Logger) *smtpService {
	return &smtpService{
		conf:       conf.SMTP,
		from:       conf.DefaultFromEmail(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc *smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.Send(context.Background(), msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email %q: %v", msg.Subject, err), err)
			}
		}()
	}
}

func (svc *smtpService) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithTimeout(smtpTimeout),
		gomail.WithTLSConfig(&tls.Config{ServerName: svc.conf.Host, MinVersion: tls.VersionTLS12}),
	}
	if svc.conf.Port > 0 {
		opts = append(opts, gomail.WithPort(svc.conf.Port))
	}
	switch svc.conf.Security {
	case SecurityTLS:
		opts = append(opts, gomail.WithSSL())
	case SecurityStartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if svc.conf.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(svc.conf.Username),
			gomail.WithPassword(svc.conf.Password),
		)
	}
	c, err := gomail.NewClient(svc.conf.Host, opts...)
	return c, errors.Wrap(err, "configuring smtp client")
}

// newMsg converts a rendered message. Bcc recipients are only part of the envelope.
func (svc *smtpService) newMsg(msg *core.EmailMessage) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(svc.from.String()); err != nil {
		return nil, errors.Wrap(err, "setting sender")
	}
	setters := []struct {
		header string
		set    func(...string) error
		addrs  []mail.Address
	}{
		{header: "To", set: m.To, addrs: msg.To},
		{header: "Cc", set: m.Cc, addrs: msg.Cc},
		{header: "Bcc", set: m.Bcc, addrs: msg.Bcc},
	}
	for _, s := range setters {
		if len(s.addrs) == 0 {
			continue
		}
		list := make([]string, 0, len(s.addrs))
		for _, a := range s.addrs {
			list = append(list, a.String())
		}
		if err := s.set(list...); err != nil {
			return nil, errors.Wrapf(err, "setting %s", s.header)
		}
	}
	if msg.ReplyTo != nil {
		if err := m.ReplyTo(msg.ReplyTo.String()); err != nil {
			return nil, errors.Wrap(err, "setting Reply-To")
		}
	}
	m.Subject(svc.subjPrefix + msg.Subject)
	m.SetDate()

	switch {
	case msg.TextContent != "" && msg.HTMLContent != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.TextContent)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLContent)
	case msg.HTMLContent != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTMLContent)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.TextContent)
	}

	for _, at := range msg.Attachments {
		// attachments are kept base64 encoded
		content, err := base64.StdEncoding.DecodeString(at.Content.String())
		if err != nil {
			return nil, errors.Wrapf(err, "decoding attachment %s", at.Filename)
		}
		m.AttachReadSeeker(at.Filename, bytes.NewReader(content), gomail.WithFileContentType(gomail.ContentType(at.ContentType)))
	}
	return m, nil
}

func (svc *smtpService) Send(ctx context.Context, msg *core.EmailMessage) error {
	ok, err := prepare(msg)
	if err != nil {
		return core.NewSendError(err)
	}
	if !ok {
		return core.NewSendError(errNothingToSend)
	}
	m, err := svc.newMsg(msg)
	if err != nil {
		return core.NewSendError(err)
	}

	c, err := svc.client()
	if err != nil {
		return core.NewSendError(err)
	}
	if err = c.DialAndSendWithContext(ctx, m); err != nil {
		return core.NewSendError(errors.Wrap(err, "sending over smtp"))
	}
	return nil
}
