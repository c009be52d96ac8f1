package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const dialTimeout = 3 * time.Second

// Publisher sends reset notifications to RabbitMQ.  Each publish dials its
// own connection; reset requests are rare enough that pooling is not worth
// the reconnect bookkeeping.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.Named("rabbitmq")}
}

// NotifyPasswordReset publishes ev to PasswordResetQueue as a persistent
// message.  Errors are logged and returned so the caller can ignore them.
func (p *Publisher) NotifyPasswordReset(ctx context.Context, ev PasswordResetRequested) error {
	pub, err := encodeEvent(ev)
	if err != nil {
		p.log.Error("marshal event failed", zap.Error(err))
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		p.log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch); err != nil {
		p.log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",                 // default exchange
		PasswordResetQueue, // routing key = queue name
		false,              // mandatory
		false,              // immediate
		pub,
	); err != nil {
		p.log.Warn("publish failed", zap.Error(err), zap.String("request_id", ev.RequestID))
		return err
	}
	return nil
}

func encodeEvent(ev PasswordResetRequested) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		CorrelationId: ev.RequestID,
		Body:          body,
	}, nil
}

// declare makes sure the durable queue exists (idempotent).
func declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(PasswordResetQueue, true, false, false, false, nil)
	return err
}
