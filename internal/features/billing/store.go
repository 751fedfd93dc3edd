// Package billing — store.go определяет интерфейс хранилища балансов и леджера.
// Две реализации: Repository (PostgreSQL, продакшен) и MemStore (in-memory,
// dev/test). Сервисы (Gate, RefundCoordinator, Ledger) зависят только от
// интерфейса, поэтому тестируются без базы.
package billing

import (
	"context"
	"time"
)

// Store — атомарные операции над балансом и леджером.
//
// Контракт атомарности: ReserveFunds, CreditFunds и RefundDebit изменяют
// баланс и добавляют запись в леджер как одно целое. Частичного эффекта
// (списали, но не записали; записали, но не списали) быть не может.
// Конкурентные операции над одним пользователем сериализуются на уровне
// хранилища (блокировка строки баланса).
type Store interface {
	// EnsureBalance создаёт запись баланса с нулём звёзд, если её ещё нет.
	EnsureBalance(ctx context.Context, userID int64) error

	// GetBalance возвращает текущий баланс.
	// Если записи нет — common.ErrUserNotFound.
	GetBalance(ctx context.Context, userID int64) (int64, error)

	// ReserveFunds атомарно списывает cost звёзд и добавляет
	// COMPLETED EXPENSE транзакцию.
	// Ошибки: common.ErrUserNotFound, common.ErrInsufficientFunds —
	// в обоих случаях ни баланс, ни леджер не изменяются.
	ReserveFunds(ctx context.Context, userID, cost int64, meta TxMeta) (txID, newBalance int64, err error)

	// CreditFunds атомарно начисляет amount звёзд и добавляет
	// COMPLETED INCOME транзакцию.
	// Повторное начисление с тем же непустым ExternalID для source=payment
	// отклоняется с common.ErrDuplicatePayment (идемпотентность платёжных колбэков).
	CreditFunds(ctx context.Context, userID, amount int64, meta TxMeta) (txID, newBalance int64, err error)

	// RefundDebit возвращает пользователю сумму исходного списания ровно один раз.
	// Добавляет INCOME/BONUS транзакцию со ссылкой refund_of на исходную.
	// Ошибки: common.ErrTransactionNotFound, common.ErrAlreadyRefunded.
	RefundDebit(ctx context.Context, origTxID int64, reason string) (*RefundResult, error)

	// GetTransaction возвращает транзакцию по ID.
	GetTransaction(ctx context.Context, txID int64) (*Transaction, error)

	// ListTransactions возвращает последние limit транзакций пользователя,
	// новые первыми.
	ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error)

	// ListCompletedIncome возвращает все COMPLETED INCOME транзакции за период.
	// Категоризацию выполняет вызывающий код через EffectiveCategory.
	ListCompletedIncome(ctx context.Context, since time.Time) ([]*Transaction, error)

	// SumCompleted возвращает сумму COMPLETED-транзакций пользователя
	// со знаком по направлению. Должна совпадать с балансом.
	SumCompleted(ctx context.Context, userID int64) (int64, error)
}
