// Package billing — repository.go выполняет все операции с таблицами balances
// и transactions. Все денежные операции выполняются в транзакциях БД
// с блокировкой строки баланса (FOR UPDATE) для целостности данных.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stargen.ru/generation-bot/internal/common"
)

// Repository предоставляет методы для работы с балансами и транзакциями.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий биллинга.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// компиляционная проверка соответствия интерфейсу
var _ Store = (*Repository)(nil)

// EnsureBalance создаёт запись баланса для нового пользователя.
// Начальный баланс всегда 0 звёзд.
func (r *Repository) EnsureBalance(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO balances (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("ошибка создания баланса: %w", err)
	}
	return nil
}

// GetBalance возвращает текущий баланс пользователя.
func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT balance FROM balances WHERE user_id = $1`
	var balance int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
		}
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

// ReserveFunds списывает звёзды за задачу генерации.
// Проверка баланса и списание — одна атомарная операция: строка баланса
// блокируется FOR UPDATE, поэтому два конкурентных списания одного
// пользователя не могут оба пройти, когда звёзд хватает лишь на одно.
func (r *Repository) ReserveFunds(ctx context.Context, userID, cost int64, meta TxMeta) (int64, int64, error) {
	// Начинаем транзакцию БД, чтобы обновление баланса и запись в леджер
	// были атомарными (либо оба произойдут, либо ни одного)
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Проверяем баланс перед списанием (с блокировкой строки FOR UPDATE)
	var currentBalance int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&currentBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
		}
		return 0, 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}

	if currentBalance < cost {
		// Откат без мутаций: ни баланс, ни леджер не трогаем
		return 0, currentBalance, fmt.Errorf("нужно %d, есть %d: %w", cost, currentBalance, common.ErrInsufficientFunds)
	}

	// Списываем
	_, err = tx.Exec(ctx, `
		UPDATE balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, cost)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка списания: %w", err)
	}

	// Записываем транзакцию в леджер
	var txID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, amount, direction, category, status, source, service_type, external_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, userID, cost, DirectionExpense, meta.Category, StatusCompleted,
		meta.Source, meta.ServiceType, meta.ExternalID, meta.Description,
	).Scan(&txID)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return txID, currentBalance - cost, nil
}

// CreditFunds начисляет звёзды на счёт пользователя.
// Используется для пополнений, бонусов админа и возвратов.
func (r *Repository) CreditFunds(ctx context.Context, userID, amount int64, meta TxMeta) (int64, int64, error) {
	return r.creditTx(ctx, userID, amount, meta, nil)
}

// creditTx — общий путь начисления. refundOf ссылается на исходное
// списание, когда начисление является возвратом.
func (r *Repository) creditTx(ctx context.Context, userID, amount int64, meta TxMeta, refundOf *int64) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку баланса
	var currentBalance int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&currentBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
		}
		return 0, 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE balances
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начисления: %w", err)
	}

	var txID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, amount, direction, category, status, source, service_type, external_id, refund_of, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, userID, amount, DirectionIncome, meta.Category, StatusCompleted,
		meta.Source, meta.ServiceType, meta.ExternalID, refundOf, meta.Description,
	).Scan(&txID)
	if err != nil {
		// Уникальные индексы ловят гонки: повторный платёжный колбэк
		// и повторный возврат по одному списанию.
		if isUniqueViolation(err) {
			if refundOf != nil {
				return 0, 0, common.ErrAlreadyRefunded
			}
			return 0, 0, common.ErrDuplicatePayment
		}
		return 0, 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return txID, currentBalance + amount, nil
}

// RefundDebit возвращает сумму исходного списания ровно один раз.
// Повторный возврат отклоняется дважды: проверкой существующей записи
// и уникальным индексом на refund_of (на случай гонки двух возвратов).
func (r *Repository) RefundDebit(ctx context.Context, origTxID int64, reason string) (*RefundResult, error) {
	orig, err := r.GetTransaction(ctx, origTxID)
	if err != nil {
		return nil, err
	}
	if orig.Direction != DirectionExpense || orig.Status != StatusCompleted {
		return nil, fmt.Errorf("транзакция %d не является завершённым списанием: %w", origTxID, common.ErrTransactionNotFound)
	}

	// Быстрая проверка: возврат уже был
	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE refund_of = $1)`, origTxID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки возврата: %w", err)
	}
	if exists {
		return nil, common.ErrAlreadyRefunded
	}

	meta := TxMeta{
		Source:      SourceRefund,
		Category:    CategoryBonus,
		ServiceType: orig.ServiceType,
		Description: reason,
	}
	refundTxID, newBalance, err := r.creditTx(ctx, orig.UserID, orig.Amount, meta, &origTxID)
	if err != nil {
		return nil, err
	}

	return &RefundResult{
		RefundTxID: refundTxID,
		UserID:     orig.UserID,
		Amount:     orig.Amount,
		NewBalance: newBalance,
	}, nil
}

// GetTransaction возвращает транзакцию по ID.
func (r *Repository) GetTransaction(ctx context.Context, txID int64) (*Transaction, error) {
	query := `
		SELECT id, user_id, amount, direction, category, status, source,
		       service_type, external_id, refund_of, description, created_at
		FROM transactions
		WHERE id = $1
	`
	var t Transaction
	err := r.db.QueryRow(ctx, query, txID).Scan(
		&t.ID, &t.UserID, &t.Amount, &t.Direction, &t.Category, &t.Status,
		&t.Source, &t.ServiceType, &t.ExternalID, &t.RefundOf, &t.Description, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tx_id=%d: %w", txID, common.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения транзакции: %w", err)
	}
	return &t, nil
}

// ListTransactions возвращает последние N транзакций пользователя.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, user_id, amount, direction, category, status, source,
		       service_type, external_id, refund_of, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.queryTransactions(ctx, query, userID, limit)
}

// ListCompletedIncome возвращает COMPLETED INCOME транзакции за период.
// Используется отчётом о выручке (категоризация — через EffectiveCategory).
func (r *Repository) ListCompletedIncome(ctx context.Context, since time.Time) ([]*Transaction, error) {
	query := `
		SELECT id, user_id, amount, direction, category, status, source,
		       service_type, external_id, refund_of, description, created_at
		FROM transactions
		WHERE direction = $1 AND status = $2 AND created_at >= $3
		ORDER BY created_at
	`
	return r.queryTransactions(ctx, query, DirectionIncome, StatusCompleted, since)
}

// SumCompleted возвращает сумму COMPLETED-транзакций со знаком по направлению.
// По инварианту леджера результат обязан совпадать с balances.balance.
func (r *Repository) SumCompleted(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = $2 THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE user_id = $1 AND status = $3
	`
	var sum int64
	if err := r.db.QueryRow(ctx, query, userID, DirectionIncome, StatusCompleted).Scan(&sum); err != nil {
		return 0, fmt.Errorf("ошибка суммирования леджера: %w", err)
	}
	return sum, nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Amount, &t.Direction, &t.Category, &t.Status,
			&t.Source, &t.ServiceType, &t.ExternalID, &t.RefundOf, &t.Description, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// isUniqueViolation проверяет нарушение уникального индекса (код 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
