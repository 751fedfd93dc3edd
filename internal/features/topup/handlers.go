// Package topup — handlers.go: команда /пополнить, выставление счетов
// и платёжные колбэки Telegram (PreCheckout, SuccessfulPayment).
package topup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
)

// CallbackPrefix — префикс callback data кнопок пополнения.
const CallbackPrefix = "topup"

// Handler обрабатывает команды и платёжные события пополнения.
type Handler struct {
	cfg     *config.Config
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик пополнения.
func NewHandler(cfg *config.Config, service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{cfg: cfg, service: service, bot: bot}
}

// HandleTopup обрабатывает /пополнить — показывает пакеты.
func (h *Handler) HandleTopup(ctx context.Context, chatID int64) {
	var rows [][]tgbotapi.InlineKeyboardButton

	if h.cfg.PaymentProviderToken != "" {
		for _, rub := range h.cfg.TopupRubleOptions {
			stars := int64(float64(rub) * h.cfg.StarsPerRuble)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("💳 %s ₽ → %s", common.FormatNumber(rub), common.FormatStars(stars)),
					fmt.Sprintf("%s:%s:%d", CallbackPrefix, CurrencyRubles, rub),
				),
			))
		}
	}
	for _, stars := range h.cfg.TopupStarOptions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("⭐ %s (Telegram Stars)", common.FormatStars(stars)),
				fmt.Sprintf("%s:%s:%d", CallbackPrefix, CurrencyStars, stars),
			),
		))
	}

	msg := tgbotapi.NewMessage(chatID, "💰 Выберите пакет пополнения:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки пакетов пополнения")
	}
}

// HandleCallback обрабатывает нажатие кнопки пакета: валидирует сумму
// и выставляет счёт. Сумма не из списка (подделанный callback data)
// отклоняется до любого счёта.
func (h *Handler) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer h.answerCallback(query.ID)

	curr, amount, err := parseCallbackData(query.Data)
	if err != nil {
		log.WithField("data", query.Data).Warn("Битый callback пополнения")
		return
	}

	invoice, err := h.service.BuildInvoice(query.From.ID, curr, amount)
	if err != nil {
		if errors.Is(err, common.ErrInvalidTopupOption) {
			// Сумма не из конфига: либо подделка, либо список сменили
			log.WithFields(log.Fields{
				"user_id": query.From.ID,
				"curr":    curr,
				"amount":  amount,
			}).Warn("Отклонён пакет вне списка")
			h.sendMessage(query.Message.Chat.ID, "❌ Такого пакета нет, выберите из списка: /пополнить")
			return
		}
		log.WithError(err).Error("Ошибка сборки счёта")
		return
	}

	h.SendInvoice(query.Message.Chat.ID, invoice)
}

// SendInvoice выставляет счёт: рубли — через платёжного провайдера,
// звёзды — в валюте XTR без токена. Используется и кнопками, и сценами.
func (h *Handler) SendInvoice(chatID int64, invoice *Invoice) {
	var inv tgbotapi.InvoiceConfig
	switch invoice.Curr {
	case CurrencyRubles:
		inv = tgbotapi.NewInvoice(chatID, invoice.Title(),
			fmt.Sprintf("Начислим %s", common.FormatStars(invoice.Stars)),
			invoice.Payload, h.cfg.PaymentProviderToken, "", "RUB",
			// Telegram считает в копейках
			[]tgbotapi.LabeledPrice{{Label: invoice.PriceLabel(), Amount: int(invoice.Amount * 100)}})
	case CurrencyStars:
		inv = tgbotapi.NewInvoice(chatID, invoice.Title(),
			fmt.Sprintf("Начислим %s", common.FormatStars(invoice.Stars)),
			invoice.Payload, "", "", "XTR",
			[]tgbotapi.LabeledPrice{{Label: invoice.PriceLabel(), Amount: int(invoice.Amount)}})
	}

	if _, err := h.bot.Send(inv); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"chat_id": chatID,
			"payload": invoice.Payload,
		}).Error("Ошибка выставления счёта")
		h.sendMessage(chatID, "❌ Не получилось выставить счёт, попробуйте позже")
	}
}

// HandlePreCheckout подтверждает (или отклоняет) платёж до списания
// денег. Отклоняем только счета с чужим payload.
func (h *Handler) HandlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}
	if !h.service.ValidPayload(query.InvoicePayload) {
		log.WithFields(log.Fields{
			"user_id": query.From.ID,
			"payload": query.InvoicePayload,
		}).Warn("PreCheckout с неизвестным payload")
		answer.OK = false
		answer.ErrorMessage = "Счёт устарел, выставьте новый: /пополнить"
	}

	if _, err := h.bot.Request(answer); err != nil {
		log.WithError(err).Error("Ошибка ответа на PreCheckout")
	}
}

// HandleSuccessfulPayment начисляет звёзды по проведённому платежу.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) {
	payment := message.SuccessfulPayment
	if payment == nil {
		return
	}

	balance, credited, err := h.service.Credit(ctx, message.From.ID, payment.InvoicePayload)
	if err != nil {
		// Деньги списаны, начисление не прошло — чинится руками по payload
		log.WithError(err).WithFields(log.Fields{
			"user_id": message.From.ID,
			"payload": payment.InvoicePayload,
			"charge":  payment.TelegramPaymentChargeID,
		}).Error("АЛЕРТ: платёж прошёл, начисление не выполнено")
		h.sendMessage(message.Chat.ID, "⚠️ Платёж получен, начисление задерживается. Мы уже разбираемся.")
		return
	}
	if !credited {
		return // повторный колбэк, пользователю уже всё сообщили
	}

	h.sendMessage(message.Chat.ID, fmt.Sprintf(
		"✅ Оплата получена!\n⭐ Баланс: %s", common.FormatStars(balance)))
}

// parseCallbackData разбирает callback data формата topup:<валюта>:<сумма>.
func parseCallbackData(data string) (Currency, int64, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != CallbackPrefix {
		return "", 0, fmt.Errorf("callback %q: %w", data, common.ErrInvalidInput)
	}
	amount, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("callback %q: %w", data, common.ErrInvalidInput)
	}
	return Currency(parts[1]), amount, nil
}

func (h *Handler) answerCallback(id string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, "")); err != nil {
		log.WithError(err).Debug("Ошибка ответа на callback")
	}
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
