package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"insta-vault/internal/domain"
	"insta-vault/internal/infra/metrics"
)

// RabbitTranscriptionQueue реализует очередь задач расшифровки на RabbitMQ.
type RabbitTranscriptionQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitTranscriptionQueue подключается к RabbitMQ и объявляет очередь.
func NewRabbitTranscriptionQueue(amqpURL, queue string) (*RabbitTranscriptionQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitTranscriptionQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitTranscriptionQueue) Enqueue(ctx context.Context, job domain.TranscriptionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди и возвращает функцию подтверждения.
func (q *RabbitTranscriptionQueue) Receive(ctx context.Context) (domain.TranscriptionJob, domain.TranscriptionAckFunc, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return domain.TranscriptionJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.TranscriptionJob{}, nil, ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return domain.TranscriptionJob{}, nil, errors.New("rabbitmq: канал доставки закрыт")
			}
			var job domain.TranscriptionJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				// Нечитаемое сообщение возвращать в очередь бессмысленно.
				_ = delivery.Nack(false, false)
				continue
			}
			ack := func(success bool) error {
				if success {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

// Close освобождает соединение.
func (q *RabbitTranscriptionQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func (q *RabbitTranscriptionQueue) consumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}
