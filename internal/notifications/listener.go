package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher receives decoded rows. *Hub satisfies it.
type Publisher interface {
	Publish(n Notification) int
}

// Listener holds one pooled connection on LISTEN and forwards every payload
// to a Publisher. A lost connection is reacquired after RetryDelay.
type Listener struct {
	pool       *pgxpool.Pool
	publisher  Publisher
	logger     *slog.Logger
	RetryDelay time.Duration
}

// NewListener constructs a listener.
func NewListener(pool *pgxpool.Pool, publisher Publisher, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{pool: pool, publisher: publisher, logger: logger, RetryDelay: 2 * time.Second}
}

// Run listens until ctx is cancelled. Errors are logged and never returned.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Error("notification listener interrupted", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.RetryDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	// A connection left in LISTEN must not go back to the pool for reuse.
	defer func() {
		if !conn.Conn().IsClosed() {
			_ = conn.Conn().Close(context.Background())
		}
	}()
	l.logger.Info("notification listener attached", slog.String("channel", Channel))
	for {
		msg, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.deliver(msg)
	}
}

func (l *Listener) deliver(msg *pgconn.Notification) {
	n, err := Decode(msg.Payload)
	if err != nil {
		l.logger.Warn("decode notification payload", slog.Any("error", err))
		return
	}
	if l.publisher.Publish(n) == 0 {
		l.logger.Debug("notification without open stream", slog.String("user_id", n.UserID.String()))
	}
}

// Decode parses a trigger payload.
func Decode(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, err
	}
	if n.ID == uuid.Nil {
		return Notification{}, errors.New("notification payload without id")
	}
	return n, nil
}
