// Package billing — gate.go решает, можно ли оплатить задачу генерации.
// Gate — единственная точка списания звёзд: читает баланс, сравнивает
// с ценой и атомарно списывает через Store.
package billing

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
)

// Reason — причина отказа в списании.
type Reason string

const (
	ReasonOK                Reason = ""
	ReasonInsufficientFunds Reason = "INSUFFICIENT_FUNDS"
	ReasonUserNotFound      Reason = "USER_NOT_FOUND"
	ReasonError             Reason = "ERROR"
)

// Decision — результат запроса на списание.
type Decision struct {
	Allowed    bool   // Разрешено ли списание
	NewBalance int64  // Баланс после списания (при отказе — текущий)
	Reason     Reason // Причина отказа
	TxID       int64  // ID EXPENSE-транзакции (только при Allowed)
}

// Gate проверяет и списывает звёзды за задачи генерации.
type Gate struct {
	store Store
}

// NewGate создаёт шлюз списаний поверх хранилища.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Reserve списывает cost звёзд за задачу serviceType.
//
// Бизнес-отказы (не хватает звёзд, пользователь не найден) возвращаются
// как Decision c Allowed=false и err == nil — это ожидаемые исходы, а не
// сбои. Системные сбои хранилища возвращают Reason=ERROR и саму ошибку.
// В любом случае отказа ни баланс, ни леджер не изменяются.
func (g *Gate) Reserve(ctx context.Context, userID, cost int64, serviceType, description string) (*Decision, error) {
	if cost <= 0 {
		return nil, common.ErrInvalidAmount
	}

	meta := TxMeta{
		Source:      SourceGeneration,
		Category:    CategoryReal,
		ServiceType: serviceType,
		Description: description,
	}

	txID, newBalance, err := g.store.ReserveFunds(ctx, userID, cost, meta)
	switch {
	case err == nil:
		log.WithFields(log.Fields{
			"user_id": userID,
			"cost":    cost,
			"service": serviceType,
			"tx_id":   txID,
			"balance": newBalance,
		}).Info("Звёзды списаны")
		return &Decision{Allowed: true, NewBalance: newBalance, TxID: txID}, nil

	case errors.Is(err, common.ErrInsufficientFunds):
		return &Decision{Allowed: false, NewBalance: newBalance, Reason: ReasonInsufficientFunds}, nil

	case errors.Is(err, common.ErrUserNotFound):
		return &Decision{Allowed: false, Reason: ReasonUserNotFound}, nil

	default:
		// Сбой хранилища: частичных мутаций нет (гарантия Store)
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"cost":    cost,
			"service": serviceType,
		}).Error("Сбой списания звёзд")
		return &Decision{Allowed: false, Reason: ReasonError}, err
	}
}
