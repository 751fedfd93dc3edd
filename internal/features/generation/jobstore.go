// Package generation — jobstore.go определяет интерфейс хранилища задач.
// Реализации: Repository (PostgreSQL) и MemJobStore (in-memory, dev/test).
package generation

import (
	"context"
	"time"
)

// JobStore — операции над таблицей задач.
//
// Mark-методы защищены от повторных переходов: обновление применяется
// только если задача ещё не в терминальном состоянии, и возвращает
// признак применения. Это делает обработку at-least-once доставки
// идемпотентной.
type JobStore interface {
	// Insert создаёт задачу в статусе received.
	// Возвращает false, если задача с таким ключом идемпотентности
	// уже существует (повторная отправка — без второго списания).
	Insert(ctx context.Context, job *Job) (created bool, err error)

	// GetByID возвращает задачу по ключу идемпотентности.
	// Если нет — common.ErrJobNotFound.
	GetByID(ctx context.Context, id string) (*Job, error)

	// GetByCorrelationID возвращает задачу по job id провайдера.
	GetByCorrelationID(ctx context.Context, correlationID string) (*Job, error)

	// SetBalanceChecked фиксирует успешное списание.
	SetBalanceChecked(ctx context.Context, id string, debitTxID int64) error

	// SetDispatched переводит задачу в dispatched.
	SetDispatched(ctx context.Context, id string) error

	// SetCorrelationID сохраняет job id провайдера.
	SetCorrelationID(ctx context.Context, id, correlationID string) error

	// MarkSucceeded — терминальный успех. applied=false, если задача
	// уже была в терминальном состоянии.
	MarkSucceeded(ctx context.Context, id, resultURL string) (applied bool, err error)

	// MarkFailedRefunded — терминальный провал после возврата звёзд.
	MarkFailedRefunded(ctx context.Context, id, errMsg string) (applied bool, err error)

	// MarkRejected — терминальный отказ до или на списании (без возврата).
	MarkRejected(ctx context.Context, id, reason string) error

	// ListStale возвращает задачи, зависшие в balance_checked/dispatched
	// дольше olderThan. Их разгребает фоновый реапер.
	ListStale(ctx context.Context, olderThan time.Duration) ([]*Job, error)
}
