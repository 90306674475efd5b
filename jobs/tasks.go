package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/spark-playbook/playbook/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if _, err := mail.ParseAddress(payload.To); err != nil {
		return nil, fmt.Errorf("jobs: invalid recipient %q: %w", payload.To, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, sendEmailOptions()...), nil
}

// sendEmailOptions archives a failed delivery without retrying it.
func sendEmailOptions() []asynq.Option {
	return []asynq.Option{asynq.MaxRetry(0)}
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, payload SendEmailPayload) error
}

// SMTPSender delivers mail through a plain SMTP relay such as Mailpit.
type SMTPSender struct {
	Addr string
	From string
}

// Send implements Sender.
func (s SMTPSender) Send(ctx context.Context, payload SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg strings.Builder
	msg.WriteString("From: " + s.From + "\r\n")
	msg.WriteString("To: " + payload.To + "\r\n")
	msg.WriteString("Subject: " + payload.Subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(payload.Body)
	return smtp.SendMail(s.Addr, nil, s.From, []string{payload.To}, []byte(msg.String()))
}

// NewSendEmailHandler processes TaskTypeSendEmail tasks with sender.
func NewSendEmailHandler(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskTypeSendEmail)
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("decode mail task", slog.Any("error", err))
			return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
		}
		if err := sender.Send(ctx, payload); err != nil {
			logger.Warn("send mail", slog.String("to", payload.To), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("mail sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return tracker.End(nil)
	}
}
