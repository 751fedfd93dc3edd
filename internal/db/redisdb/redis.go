// Package redisdb управляет подключением к Redis.
// Redis используется как шина фоновых задач: стримы с consumer group
// дают доставку at-least-once для видео/войс генераций.
package redisdb

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/config"
)

// NewClient создаёт клиент Redis и проверяет соединение.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}

	log.Info("Подключение к Redis установлено")
	return client, nil
}
