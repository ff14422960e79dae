package notify

import (
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/bullionscraper/internal/logger"
)

// EmailConfig holds SMTP configuration for sending emails.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
	Enabled    bool
}

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	cfg EmailConfig
	log *logger.Logger
}

// NewEmailSender creates a sender with the given SMTP configuration.
func NewEmailSender(cfg EmailConfig, log *logger.Logger) *EmailSender {
	if log == nil {
		log = logger.Nop()
	}
	return &EmailSender{cfg: cfg, log: log}
}

func (s *EmailSender) Enabled() bool { return s.cfg.Enabled }

// Send delivers an email with HTML body and plain text fallback.
func (s *EmailSender) Send(msg *RenderedMessage) error {
	if !s.cfg.Enabled {
		return nil
	}

	dialer := gomail.NewDialer(s.cfg.SMTPServer, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second

	if err := dialer.DialAndSend(s.message(msg)); err != nil {
		s.log.Error("email not sent", logger.String("to", s.cfg.ToEmail), logger.String("subject", msg.Subject), logger.Error(err))
		return fmt.Errorf("send email to %s: %w", s.cfg.ToEmail, err)
	}

	s.log.Info("email sent", logger.String("subject", msg.Subject))
	return nil
}

func (s *EmailSender) message(msg *RenderedMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", s.cfg.ToEmail)
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" && msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
	} else {
		m.SetBody("text/plain", msg.Text)
	}
	return m
}
