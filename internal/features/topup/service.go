// Package topup — service.go: проверка пакетов и начисление по оплате.
package topup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/billing"
)

// Service проверяет пакеты пополнения и проводит начисления.
type Service struct {
	cfg   *config.Config
	store billing.Store
}

// NewService создаёт сервис пополнения.
func NewService(cfg *config.Config, store billing.Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// BuildInvoice собирает счёт для пакета amount в валюте curr.
//
// Сумма вне сконфигурированного списка пакетов отклоняется ЗДЕСЬ,
// до выставления счёта — произвольные суммы не принимаются.
func (s *Service) BuildInvoice(userID int64, curr Currency, amount int64) (*Invoice, error) {
	var options []int64
	switch curr {
	case CurrencyRubles:
		options = s.cfg.TopupRubleOptions
	case CurrencyStars:
		options = s.cfg.TopupStarOptions
	default:
		return nil, fmt.Errorf("валюта %q: %w", curr, common.ErrInvalidTopupOption)
	}

	if !contains(options, amount) {
		return nil, fmt.Errorf("пакет %d (%s) не в списке: %w", amount, curr, common.ErrInvalidTopupOption)
	}

	stars := amount
	if curr == CurrencyRubles {
		stars = int64(math.Round(float64(amount) * s.cfg.StarsPerRuble))
	}
	if stars <= 0 {
		return nil, fmt.Errorf("пакет %d даёт 0 звёзд: %w", amount, common.ErrInvalidTopupOption)
	}

	return &Invoice{
		Payload: fmt.Sprintf("topup:%s:%d:%s", curr, stars, uuid.NewString()),
		UserID:  userID,
		Curr:    curr,
		Amount:  amount,
		Stars:   stars,
	}, nil
}

// ValidPayload проверяет, что payload платёжного колбэка наш.
// Вызывается на PreCheckout: чужой или битый payload отклоняет платёж
// до списания денег у пользователя.
func (s *Service) ValidPayload(payload string) bool {
	_, err := starsFromPayload(payload)
	return err == nil
}

// Credit начисляет звёзды по успешному платежу.
//
// Payload счёта служит внешним ключом идемпотентности: повторная
// доставка SuccessfulPayment (Telegram так умеет) не задваивает
// начисление. credited=false означает, что платёж уже был проведён.
func (s *Service) Credit(ctx context.Context, userID int64, payload string) (balance int64, credited bool, err error) {
	stars, err := starsFromPayload(payload)
	if err != nil {
		return 0, false, err
	}

	_, newBalance, err := s.store.CreditFunds(ctx, userID, stars, billing.TxMeta{
		Source:      billing.SourcePayment,
		Category:    billing.CategoryReal,
		ServiceType: "topup",
		ExternalID:  payload,
		Description: fmt.Sprintf("Пополнение на %s", common.FormatStars(stars)),
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicatePayment) {
			// Колбэк пришёл повторно — начисление уже проведено
			log.WithFields(log.Fields{
				"user_id": userID,
				"payload": payload,
			}).Warn("Повторный платёжный колбэк, пропускаем")
			current, berr := s.store.GetBalance(ctx, userID)
			if berr != nil {
				return 0, false, berr
			}
			return current, false, nil
		}
		return 0, false, fmt.Errorf("ошибка начисления по платежу: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"stars":   stars,
		"payload": payload,
		"balance": newBalance,
	}).Info("Платёж проведён, звёзды начислены")
	return newBalance, true, nil
}

// starsFromPayload извлекает количество звёзд из payload счёта
// (формат topup:<валюта>:<звёзды>:<uuid>).
func starsFromPayload(payload string) (int64, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 4 || parts[0] != "topup" {
		return 0, fmt.Errorf("payload %q: %w", payload, common.ErrInvalidInput)
	}
	stars, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || stars <= 0 {
		return 0, fmt.Errorf("payload %q: %w", payload, common.ErrInvalidInput)
	}
	return stars, nil
}

func contains(list []int64, v int64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
