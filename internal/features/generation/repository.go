// Package generation — repository.go выполняет операции с таблицей jobs.
// Payload хранится в JSONB, статусные переходы защищены условием
// «не из терминального состояния» прямо в SQL.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stargen.ru/generation-bot/internal/common"
)

// Repository предоставляет методы для работы с таблицей jobs.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий задач.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ JobStore = (*Repository)(nil)

const jobColumns = `id, user_id, kind, model_id, payload, cost, debit_tx_id,
	status, correlation_id, result_url, error, created_at, updated_at`

// Insert создаёт задачу в статусе received.
// ON CONFLICT DO NOTHING: повторная отправка с тем же ключом
// идемпотентности не создаёт вторую задачу и не ведёт к списанию.
func (r *Repository) Insert(ctx context.Context, job *Job) (bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return false, fmt.Errorf("ошибка сериализации payload: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO jobs (id, user_id, kind, model_id, payload, cost, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, job.ID, job.UserID, job.Kind, job.ModelID, payload, job.Cost, StatusReceived)
	if err != nil {
		return false, fmt.Errorf("ошибка создания задачи: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID возвращает задачу по ключу идемпотентности.
func (r *Repository) GetByID(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return r.scanJob(r.db.QueryRow(ctx, query, id), id)
}

// GetByCorrelationID возвращает задачу по job id провайдера.
func (r *Repository) GetByCorrelationID(ctx context.Context, correlationID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE correlation_id = $1`
	return r.scanJob(r.db.QueryRow(ctx, query, correlationID), correlationID)
}

func (r *Repository) SetBalanceChecked(ctx context.Context, id string, debitTxID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, debit_tx_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, StatusBalanceChecked, debitTxID, StatusReceived)
	if err != nil {
		return fmt.Errorf("ошибка перехода balance_checked: %w", err)
	}
	return nil
}

func (r *Repository) SetDispatched(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, StatusDispatched, StatusBalanceChecked)
	if err != nil {
		return fmt.Errorf("ошибка перехода dispatched: %w", err)
	}
	return nil
}

func (r *Repository) SetCorrelationID(ctx context.Context, id, correlationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs SET correlation_id = $2, updated_at = NOW() WHERE id = $1
	`, id, correlationID)
	if err != nil {
		return fmt.Errorf("ошибка записи correlation_id: %w", err)
	}
	return nil
}

// MarkSucceeded переводит задачу в терминальный успех.
// Условие по статусу отсекает повторные доставки завершений.
func (r *Repository) MarkSucceeded(ctx context.Context, id, resultURL string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, result_url = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, StatusSucceeded, resultURL, StatusBalanceChecked, StatusDispatched)
	if err != nil {
		return false, fmt.Errorf("ошибка перехода succeeded: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailedRefunded переводит задачу в терминальный провал.
func (r *Repository) MarkFailedRefunded(ctx context.Context, id, errMsg string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, StatusFailedRefunded, errMsg, StatusBalanceChecked, StatusDispatched)
	if err != nil {
		return false, fmt.Errorf("ошибка перехода failed_refunded: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRejected фиксирует отказ до списания (или на самом списании).
func (r *Repository) MarkRejected(ctx context.Context, id, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, StatusRejected, reason, StatusReceived)
	if err != nil {
		return fmt.Errorf("ошибка перехода rejected: %w", err)
	}
	return nil
}

// ListStale возвращает задачи, зависшие после списания дольше olderThan.
func (r *Repository) ListStale(ctx context.Context, olderThan time.Duration) ([]*Job, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at
	`, StatusBalanceChecked, StatusDispatched, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска зависших задач: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := r.scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanJob(row rowScanner, key string) (*Job, error) {
	job, err := r.scanJobRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job=%s: %w", key, common.ErrJobNotFound)
		}
		return nil, err
	}
	return job, nil
}

func (r *Repository) scanJobRow(row rowScanner) (*Job, error) {
	var j Job
	var payload []byte
	err := row.Scan(
		&j.ID, &j.UserID, &j.Kind, &j.ModelID, &payload, &j.Cost, &j.DebitTxID,
		&j.Status, &j.CorrelationID, &j.ResultURL, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("ошибка десериализации payload: %w", err)
		}
	}
	return &j, nil
}
