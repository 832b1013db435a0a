package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"insta-vault/internal/domain"
)

// RedisTranscriptionQueue реализует очередь задач на базе Redis lists.
// Используется, когда RabbitMQ не сконфигурирован.
type RedisTranscriptionQueue struct {
	client *redis.Client
	key    string
}

// NewRedisTranscriptionQueue создаёт очередь по указанному ключу.
func NewRedisTranscriptionQueue(client *redis.Client, key string) *RedisTranscriptionQueue {
	return &RedisTranscriptionQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisTranscriptionQueue) Enqueue(ctx context.Context, job domain.TranscriptionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение у Redis-очереди
// номинальное: сообщение уже снято с листа.
func (q *RedisTranscriptionQueue) Receive(ctx context.Context) (domain.TranscriptionJob, domain.TranscriptionAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.TranscriptionJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.TranscriptionJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.TranscriptionJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.TranscriptionJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.TranscriptionJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.TranscriptionJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, func(bool) error { return nil }, nil
	}
}
