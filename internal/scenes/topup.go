// Package scenes — topup.go: сцены пополнения вводом суммы.
// Кнопочный путь живёт в features/topup; сцены — для тех, кто
// набирает сумму текстом. Сумма вне списка пакетов повторяет шаг,
// счёт выставляется только на валидный пакет.
package scenes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/topup"
)

// Идентификаторы сцен пополнения.
const (
	SceneTopupRubles = "topup_rubles"
	SceneTopupStars  = "topup_stars"
)

// InvoiceSender выставляет собранный счёт (реализуется topup.Handler).
type InvoiceSender interface {
	SendInvoice(chatID int64, invoice *topup.Invoice)
}

// NewRubleTopupScene — сцена пополнения рублями.
func NewRubleTopupScene(cfg *config.Config, service *topup.Service, sender InvoiceSender) *Scene {
	return &Scene{
		ID: SceneTopupRubles,
		Steps: []Step{
			{
				Prompt: fmt.Sprintf("💳 Введите сумму в рублях.\nДоступные пакеты: %s (или «отмена»):",
					formatOptions(cfg.TopupRubleOptions)),
				Handle: amountStep(cfg.TopupRubleOptions, topup.CurrencyRubles, service, sender),
			},
		},
	}
}

// NewStarTopupScene — сцена пополнения через Telegram Stars.
func NewStarTopupScene(cfg *config.Config, service *topup.Service, sender InvoiceSender) *Scene {
	return &Scene{
		ID: SceneTopupStars,
		Steps: []Step{
			{
				Prompt: fmt.Sprintf("⭐ Введите количество звёзд.\nДоступные пакеты: %s (или «отмена»):",
					formatOptions(cfg.TopupStarOptions)),
				Handle: amountStep(cfg.TopupStarOptions, topup.CurrencyStars, service, sender),
			},
		},
	}
}

// amountStep принимает сумму, сверяет её со списком пакетов и выставляет
// счёт. Невалидная сумма повторяет шаг — без счёта и без списаний.
func amountStep(options []int64, curr topup.Currency, service *topup.Service, sender InvoiceSender) func(context.Context, *Session, string) (StepResult, string) {
	return func(ctx context.Context, sess *Session, input string) (StepResult, string) {
		input = strings.TrimSpace(input)
		if isCancel(input) {
			return ResultLeave, "Отменено"
		}

		amount, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return ResultRepeat, "Нужно число из списка пакетов. Попробуйте ещё раз:"
		}

		invoice, err := service.BuildInvoice(sess.UserID, curr, amount)
		if err != nil {
			if errors.Is(err, common.ErrInvalidTopupOption) {
				return ResultRepeat, fmt.Sprintf(
					"Такого пакета нет. Доступны: %s", formatOptions(options))
			}
			log.WithError(err).WithField("user_id", sess.UserID).Error("Ошибка сборки счёта")
			return ResultLeave, "❌ Не получилось выставить счёт, попробуйте позже"
		}

		// Личный диалог: chat id совпадает с user id
		sender.SendInvoice(sess.UserID, invoice)
		return ResultLeave, ""
	}
}

func formatOptions(options []int64) string {
	parts := make([]string, len(options))
	for i, v := range options {
		parts[i] = common.FormatNumber(v)
	}
	return strings.Join(parts, ", ")
}
