package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Mailer delivers a reset link to the account owner.
type Mailer interface {
	SendPasswordReset(ctx context.Context, ev PasswordResetRequested) error
}

// StartMailConsumer connects to RabbitMQ, declares PasswordResetQueue and
// hands each message to m.  It reconnects with exponential backoff and
// returns only when ctx is cancelled.  A message that cannot be handled is
// rejected without requeue so one bad payload cannot spin the loop.
func StartMailConsumer(ctx context.Context, url string, m Mailer, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("mail-consumer")

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, m, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, m Mailer, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if err := declare(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PasswordResetQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, m); err != nil {
				log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, m Mailer) error {
	var ev PasswordResetRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.Token == "" {
		return errors.New("event missing email or token")
	}
	return m.SendPasswordReset(ctx, ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// LogMailer stands in for a real mail gateway: it appends one line per
// reset request to Dir/mail.log.  Only a short token prefix is written.
type LogMailer struct {
	Dir string
	mu  sync.Mutex
}

func (l *LogMailer) SendPasswordReset(_ context.Context, ev PasswordResetRequested) error {
	dir := l.Dir
	if dir == "" {
		dir = "logs"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "mail.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	hint := ev.Token
	if len(hint) > 6 {
		hint = hint[:6]
	}
	line := fmt.Sprintf("[%s] Password reset requested | user_id=%d | to=%q | name=%q | token_hint=%s... | expires=%s | request_id=%s\n",
		time.Now().UTC().Format(time.RFC3339), ev.UserID, ev.Email, ev.Name, hint,
		ev.ExpiresAt.UTC().Format(time.RFC3339), ev.RequestID)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
