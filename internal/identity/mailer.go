package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hibiken/asynq"

	"github.com/spark-playbook/playbook/jobs"
)

// Mailer delivers confirmation links to newly registered identities.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// Enqueuer is the part of jobs.Client the mailer needs.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// QueueMailer hands confirmation mail to the background worker.
type QueueMailer struct {
	client    Enqueuer
	publicURL string
	logger    *slog.Logger
}

// NewQueueMailer builds a mailer producing links rooted at publicURL.
func NewQueueMailer(client Enqueuer, publicURL string, logger *slog.Logger) *QueueMailer {
	return &QueueMailer{client: client, publicURL: publicURL, logger: logger}
}

// SendConfirmation implements Mailer.
func (m *QueueMailer) SendConfirmation(ctx context.Context, email, token string) error {
	link := ConfirmationLink(m.publicURL, token)
	info, err := m.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: "Confirm your Spark Playbook account",
		Body:    "Welcome to Spark Playbook.\n\nConfirm your email address by opening:\n" + link + "\n",
	})
	if err != nil {
		return fmt.Errorf("identity: enqueue confirmation: %w", err)
	}
	m.logger.Info("confirmation mail queued", slog.String("task_id", info.ID))
	return nil
}

// ConfirmationLink renders the URL the user follows to verify their email.
func ConfirmationLink(publicURL, token string) string {
	return publicURL + "/auth/confirm?token=" + url.QueryEscape(token)
}

// LogMailer only logs links. It is used when no queue is configured.
type LogMailer struct {
	PublicURL string
	Logger    *slog.Logger
}

// SendConfirmation implements Mailer.
func (m LogMailer) SendConfirmation(_ context.Context, email, token string) error {
	m.Logger.Info("confirmation link", slog.String("email", email), slog.String("link", ConfirmationLink(m.PublicURL, token)))
	return nil
}
