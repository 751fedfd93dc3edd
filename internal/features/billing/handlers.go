// Package billing — handlers.go обрабатывает команды:
// /баланс (текущий баланс), /транзакции (история операций).
package billing

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
)

// Handler обрабатывает команды биллинга.
type Handler struct {
	store  Store            // Хранилище балансов
	ledger *Ledger          // Леджер для истории
	bot    *tgbotapi.BotAPI // API Telegram для отправки ответов
}

// NewHandler создаёт новый обработчик команд биллинга.
func NewHandler(store Store, ledger *Ledger, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		store:  store,
		ledger: ledger,
		bot:    bot,
	}
}

// HandleBalance обрабатывает команду /баланс — показывает баланс.
//
// Формат ответа:
//
//	⭐ Баланс: 150 звёзд
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, userID int64) {
	balance, err := h.store.GetBalance(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}

	text := fmt.Sprintf("⭐ Баланс: %s", common.FormatStars(balance))
	h.sendMessage(chatID, text)
}

// HandleTransactions обрабатывает команду /транзакции — показывает историю.
func (h *Handler) HandleTransactions(ctx context.Context, chatID int64, userID int64) {
	history, err := h.ledger.FormatHistory(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения транзакций")
		h.sendMessage(chatID, "❌ Ошибка получения истории операций")
		return
	}
	h.sendMessage(chatID, history)
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
