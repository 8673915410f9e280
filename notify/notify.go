// Package notify delivers confirmation messages. Delivery is best effort:
// callers log failures and never let them affect the operation that
// triggered the message.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

const defaultHost = "https://api.sendgrid.com"

type Message struct {
	To      string
	Name    string
	Subject string
	Body    string
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// SendGrid delivers through the SendGrid v3 mail API.
type SendGrid struct {
	key  string
	host string
	from *mail.Email
	log  logrus.FieldLogger
}

type SendGridConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	Host        string
}

func NewSendGrid(cfg SendGridConfig, log logrus.FieldLogger) *SendGrid {
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	return &SendGrid{
		key:  cfg.APIKey,
		host: host,
		from: mail.NewEmail(cfg.FromName, cfg.FromAddress),
		log:  log,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	email := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.Name, msg.To), msg.Body, "")

	client := sendgrid.NewSendClient(s.key)
	client.BaseURL = s.host + "/v3/mail/send"

	resp, err := client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending mail to %s: status %d: %s", msg.To, resp.StatusCode, resp.Body)
	}

	s.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"status":  resp.StatusCode,
	}).Info("mail sent")
	return nil
}

// Log writes messages to the logger instead of delivering them. It is used
// when no mail provider is configured.
type Log struct {
	log logrus.FieldLogger
}

func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(ctx context.Context, msg Message) error {
	l.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Body)
	return nil
}
