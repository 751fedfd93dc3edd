// Package billing — refund.go возвращает звёзды за провалившиеся задачи.
// Возврат по одному списанию выполняется не более одного раза.
package billing

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
)

// RefundCoordinator выполняет возвраты списаний.
type RefundCoordinator struct {
	store Store
}

// NewRefundCoordinator создаёт координатор возвратов поверх хранилища.
func NewRefundCoordinator(store Store) *RefundCoordinator {
	return &RefundCoordinator{store: store}
}

// Refund возвращает пользователю сумму исходного списания.
//
// Повторный вызов с тем же origTxID — идемпотентный no-op: звёзды второй
// раз не начисляются, в лог пишется предупреждение, вызывающему
// возвращается успех. Любой другой сбой — ошибка, возврат не засчитан.
func (rc *RefundCoordinator) Refund(ctx context.Context, origTxID int64, reason string) (bool, error) {
	res, err := rc.store.RefundDebit(ctx, origTxID, reason)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyRefunded) {
			log.WithFields(log.Fields{
				"orig_tx_id": origTxID,
				"reason":     reason,
			}).Warn("Повторный возврат пропущен (уже выполнен)")
			return true, nil
		}
		log.WithError(err).WithField("orig_tx_id", origTxID).Error("Сбой возврата звёзд")
		return false, err
	}

	log.WithFields(log.Fields{
		"orig_tx_id":   origTxID,
		"refund_tx_id": res.RefundTxID,
		"user_id":      res.UserID,
		"amount":       res.Amount,
		"balance":      res.NewBalance,
	}).Info("Возврат выполнен")
	return true, nil
}
