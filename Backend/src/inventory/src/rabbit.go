package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewRabbit(url, exchange string) (*Rabbit, error) {
	var conn *amqp.Connection
	err := retry(5, 2*time.Second, func() error {
		var err error
		conn, err = amqp.Dial(url)
		return err
	})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	// one delivery at a time keeps cart events of the same order in sequence
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, err
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *Rabbit) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) PublishJSON(ctx context.Context, routingKey, correlationID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.ch.PublishWithContext(ctx, r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		MessageId:     uuid.NewString(),
		Timestamp:     time.Now(),
		Body:          body,
	})
}

type ConsumerHandler func(ctx context.Context, rk string, body []byte) error

// ConsumeTopic binds queueName to bindings and feeds deliveries to handler until ctx is
// done. Every delivery is acked, also when the handler fails.
func (r *Rabbit) ConsumeTopic(ctx context.Context, queueName string, bindings []string, handler ConsumerHandler) error {
	q, err := r.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for _, rk := range bindings {
		if err := r.ch.QueueBind(q.Name, rk, r.exchange, false, nil); err != nil {
			return err
		}
	}
	tag := "stockd-" + uuid.NewString()
	msgs, err := r.ch.Consume(q.Name, tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	log.Info().Str("queue", q.Name).Str("tag", tag).Strs("bindings", bindings).Msg("rabbit consumer started")

	for {
		select {
		case <-ctx.Done():
			_ = r.ch.Cancel(tag, false)
			log.Info().Str("queue", q.Name).Msg("rabbit consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbit: delivery channel closed")
			}
			if err := handler(ctx, d.RoutingKey, d.Body); err != nil {
				log.Error().Err(err).Str("rk", d.RoutingKey).Msg("handler error")
			}
			_ = d.Ack(false)
		}
	}
}

// retry calls fn up to n times, sleeping between failures.
func retry(n int, sleep time.Duration, fn func() error) error {
	var err error
	for i := 0; i < n; i++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("retrying")
		time.Sleep(sleep)
	}
	return err
}
