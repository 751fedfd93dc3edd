// Package generation — dispatcher.go отправляет оплаченные задачи в шину
// с повторами транспортных сбоев.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
)

// Transport — транспорт шины задач (в продакшене — Redis Streams).
type Transport interface {
	// Publish кладёт событие в шину. id — ключ идемпотентности,
	// доезжает до обработчика вместе с данными.
	Publish(ctx context.Context, name, id string, data []byte) error
}

// Sleeper — задержка между повторами (подменяется в тестах,
// чтобы не ждать реального времени).
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultSleeper реализует Sleeper через time.After.
type DefaultSleeper struct{}

func (s *DefaultSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Dispatcher отправляет события в шину задач с повторами.
//
// Повторяются только транспортные сбои (не доехало до шины). Исход самой
// генерации (провайдер сообщил о провале) сюда не попадает и не
// повторяется — это зона ответственности оркестратора.
type Dispatcher struct {
	transport   Transport
	maxAttempts int           // Сколько всего попыток (наблюдаемая политика: 3)
	baseDelay   time.Duration // Задержка перед вторым заходом, далее удваивается
	sleeper     Sleeper
}

// NewDispatcher создаёт диспетчер с политикой повторов.
func NewDispatcher(transport Transport, maxAttempts int, baseDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		transport:   transport,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleeper:     &DefaultSleeper{},
	}
}

// NewDispatcherWithSleeper — конструктор для тестов с подменённой задержкой.
func NewDispatcherWithSleeper(transport Transport, maxAttempts int, baseDelay time.Duration, sleeper Sleeper) *Dispatcher {
	d := NewDispatcher(transport, maxAttempts, baseDelay)
	d.sleeper = sleeper
	return d
}

// Send сериализует payload и публикует событие name с ключом idemKey.
// Экспоненциальный backoff: baseDelay, 2*baseDelay, 4*baseDelay, ...
// После исчерпания попыток возвращает common.ErrDispatchFailed —
// вызывающий обязан пройти путь возврата звёзд.
func (d *Dispatcher) Send(ctx context.Context, name string, payload interface{}, idemKey string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	delay := d.baseDelay
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = d.transport.Publish(ctx, name, idemKey, data)
		if lastErr == nil {
			if attempt > 1 {
				log.WithFields(log.Fields{
					"event":   name,
					"idem":    idemKey,
					"attempt": attempt,
				}).Info("Событие отправлено после повтора")
			}
			return nil
		}

		log.WithError(lastErr).WithFields(log.Fields{
			"event":   name,
			"idem":    idemKey,
			"attempt": attempt,
		}).Warn("Сбой отправки в шину задач")

		if attempt == d.maxAttempts {
			break
		}
		if err := d.sleeper.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("отправка прервана: %w", err)
		}
		delay *= 2
	}

	return fmt.Errorf("после %d попыток (%v): %w", d.maxAttempts, lastErr, common.ErrDispatchFailed)
}
