// Package generation — queue.go реализует шину задач на Redis Streams.
// Consumer group + XACK дают доставку at-least-once: необработанное
// сообщение будет передоставлено другому консьюмеру через XAUTOCLAIM.
// Повторная доставка безопасна — обработка идемпотентна по статусу задачи.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Имена стримов и consumer group.
const (
	StreamJobs        = "genbot:jobs"        // Оплаченные задачи на исполнение
	StreamCompletions = "genbot:completions" // События завершения от вебхук-слоя
	ConsumerGroup     = "genbot-workers"
)

// Message — одно сообщение из стрима.
type Message struct {
	StreamID string // ID записи в стриме (для XACK)
	Name     string // Имя события
	ID       string // Ключ идемпотентности
	Data     []byte // JSON-полезная нагрузка
}

// RedisQueue — очередь поверх одного Redis-стрима.
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// NewRedisQueue создаёт очередь для стрима stream.
// consumer — имя консьюмера в группе (обычно hostname или pod name).
func NewRedisQueue(client *redis.Client, stream, consumer string) *RedisQueue {
	return &RedisQueue{
		client:   client,
		stream:   stream,
		group:    ConsumerGroup,
		consumer: consumer,
	}
}

var _ Transport = (*RedisQueue)(nil)

// Publish кладёт событие в стрим (реализация Transport для Dispatcher).
func (q *RedisQueue) Publish(ctx context.Context, name, id string, data []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			"name": name,
			"id":   id,
			"data": data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", q.stream, err)
	}
	return nil
}

// EnsureGroup создаёт consumer group, если её ещё нет.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s: %w", q.stream, err)
	}
	return nil
}

// Consume читает стрим до отмены контекста и передаёт сообщения handler.
// Успешно обработанные сообщения ACK-аются; упавшие остаются в pending
// и передоставляются через минуту (XAUTOCLAIM).
func (q *RedisQueue) Consume(ctx context.Context, handler func(ctx context.Context, msg Message) error) {
	for {
		select {
		case <-ctx.Done():
			log.WithField("stream", q.stream).Info("Консьюмер остановлен (ctx done)")
			return
		default:
		}

		// Сначала подбираем зависшие сообщения упавших консьюмеров
		q.claimStale(ctx, handler)

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.WithError(err).WithField("stream", q.stream).Error("Ошибка чтения стрима")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, raw := range stream.Messages {
				q.handleOne(ctx, raw, handler)
			}
		}
	}
}

func (q *RedisQueue) handleOne(ctx context.Context, raw redis.XMessage, handler func(ctx context.Context, msg Message) error) {
	msg := parseMessage(raw)
	if err := handler(ctx, msg); err != nil {
		// Не ACK-аем: сообщение останется в pending и будет передоставлено
		log.WithError(err).WithFields(log.Fields{
			"stream": q.stream,
			"id":     msg.ID,
		}).Error("Ошибка обработки сообщения, будет повтор")
		return
	}
	if err := q.client.XAck(ctx, q.stream, q.group, raw.ID).Err(); err != nil {
		log.WithError(err).WithField("stream", q.stream).Warn("Ошибка XACK")
	}
}

// claimStale забирает сообщения, висящие в pending дольше минуты.
func (q *RedisQueue) claimStale(ctx context.Context, handler func(ctx context.Context, msg Message) error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  time.Minute,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return
	}
	for _, raw := range msgs {
		q.handleOne(ctx, raw, handler)
	}
}

func parseMessage(raw redis.XMessage) Message {
	msg := Message{StreamID: raw.ID}
	if v, ok := raw.Values["name"].(string); ok {
		msg.Name = v
	}
	if v, ok := raw.Values["id"].(string); ok {
		msg.ID = v
	}
	if v, ok := raw.Values["data"].(string); ok {
		msg.Data = []byte(v)
	}
	return msg
}
