// internal/queue/amqp.go
package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/streadway/amqp"
)

// job is the wire shape on the broker: the ledger row id only.
type job struct {
	MessageID int64 `json:"message_id"`
}

// AMQP backs the queue with RabbitMQ so the API server and dispatch workers
// can run as separate processes. Deferred delivery uses a per-topic retry
// queue whose messages dead-letter back onto the work queue when their TTL
// expires; no consumer ever sleeps on a backoff.
type AMQP struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

func NewAMQP(url string, log *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, log: log}, nil
}

func retryQueueName(topic string) string { return topic + ".retry" }

// declare sets up the durable work queue and its companion retry queue.
func (q *AMQP) declare(topic string) error {
	if _, err := q.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	_, err := q.ch.QueueDeclare(retryQueueName(topic), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": topic,
	})
	if err != nil {
		return fmt.Errorf("declare retry queue for %s: %w", topic, err)
	}
	return nil
}

func (q *AMQP) publish(routingKey string, messageID int64, expiration string) error {
	body, err := json.Marshal(job{MessageID: messageID})
	if err != nil {
		return err
	}
	return q.ch.Publish("", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Expiration:   expiration,
	})
}

func (q *AMQP) Publish(topic string, messageID int64) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.publish(topic, messageID, "")
}

func (q *AMQP) PublishAfter(topic string, messageID int64, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(topic, messageID)
	}
	if err := q.declare(topic); err != nil {
		return err
	}
	ttl := strconv.FormatInt(delay.Milliseconds(), 10)
	return q.publish(retryQueueName(topic), messageID, ttl)
}

func (q *AMQP) Subscribe(topic string, workers int, handler func(messageID int64) error) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}
	// Bound in-flight deliveries to the pool size.
	if err := q.ch.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := q.ch.Consume(topic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for i := 0; i < workers; i++ {
		go func() {
			for d := range msgs {
				var j job
				if err := json.Unmarshal(d.Body, &j); err != nil {
					q.log.Warn("dropping malformed job", slog.Any("error", err))
					_ = d.Nack(false, false)
					continue
				}
				if err := handler(j.MessageID); err != nil {
					// Retry scheduling is the dispatcher's job; the broker
					// must not re-deliver on top of it.
					q.log.Error("job handler failed", slog.Int64("message_id", j.MessageID), slog.Any("error", err))
				}
				_ = d.Ack(false)
			}
		}()
	}
	return nil
}

func (q *AMQP) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQP)(nil)
