package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// AMQPQueue publishes nudge jobs to a durable RabbitMQ queue so a separate
// worker process reacts to enqueues without waiting for its next poll tick.
type AMQPQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    zerolog.Logger
}

func NewAMQPQueue(url, queueName string, logger zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPQueue{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		logger:    logger.With().Str("component", "amqp").Logger(),
	}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	err = q.channel.Publish("", q.queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Consume delivers jobs to handler until ctx is cancelled. A handler error
// requeues the delivery once; a second failure acks it away, since the poll
// loop will cover the entries anyway.
func (q *AMQPQueue) Consume(ctx context.Context, handler func(Job) error) error {
	deliveries, err := q.channel.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp deliveries channel closed")
			}
			var job Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				q.logger.Warn().Err(err).Msg("invalid job payload")
				d.Ack(false)
				continue
			}
			if err := handler(job); err != nil {
				q.logger.Warn().Err(err).Str("publisher_id", job.PublisherID).Msg("job handler failed")
				d.Nack(false, !d.Redelivered)
				continue
			}
			d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
