// Package admin — handlers.go обрабатывает взаимодействие с панелью.
// Панель работает через Reply Keyboard в личных сообщениях.
// Поток: аутентификация → клавиатура → выбор действия → пошаговый диалог.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
)

// Кнопки панели.
const (
	btnGrant   = "Начислить бонус"
	btnAudit   = "Сверить баланс"
	btnRevenue = "Выручка"
	btnLogout  = "Выйти"
)

// grantContext — контекст диалога начисления (между шагами).
type grantContext struct {
	TargetUserID int64
}

// Handler обрабатывает сообщения операторов.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик панели.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleMessage обрабатывает любое сообщение от оператора в DM.
// Определяет текущее состояние диалога и маршрутизирует сообщение.
// Возвращает false, если пользователь не оператор — сообщение пойдёт
// обычным маршрутом.
func (h *Handler) HandleMessage(ctx context.Context, chatID int64, userID int64, text string) bool {
	if !h.service.IsOperator(userID) {
		return false
	}

	state := h.service.GetState(userID)

	if state != nil && state.Name == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	if !h.service.HasActiveSession(ctx, userID) {
		// Сессия истекла посреди диалога — бросаем незавершённый шаг
		if state != nil {
			h.service.ClearState(userID)
			h.sendMessage(chatID, "🔐 "+common.ErrSessionExpired.Error())
			return true
		}
		switch strings.ToLower(text) {
		case "/панель", "панель", "/admin", "admin":
			h.sendMessage(chatID, "🔐 Введите пароль для доступа к панели:")
			h.service.SetState(userID, StateAwaitingPassword, nil)
			return true
		}
		return false // без сессии оператор ходит как обычный пользователь
	}

	h.service.TouchSession(ctx, userID)

	if state != nil {
		switch state.Name {
		case StateGrantUser:
			h.handleGrantUser(ctx, chatID, userID, text)
			return true
		case StateGrantAmount:
			h.handleGrantAmount(ctx, chatID, userID, text)
			return true
		case StateAuditUser:
			h.handleAuditUser(ctx, chatID, userID, text)
			return true
		}
	}

	// Кнопки клавиатуры
	switch text {
	case btnGrant:
		h.sendMessage(chatID, "Введите Telegram ID получателя:")
		h.service.SetState(userID, StateGrantUser, nil)
		return true
	case btnAudit:
		h.sendMessage(chatID, "Введите Telegram ID пользователя для сверки:")
		h.service.SetState(userID, StateAuditUser, nil)
		return true
	case btnRevenue:
		h.showRevenue(ctx, chatID)
		return true
	case btnLogout:
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка выхода из панели")
		}
		msg := tgbotapi.NewMessage(chatID, "Сессия закрыта")
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		if _, err := h.bot.Send(msg); err != nil {
			log.WithError(err).Error("Ошибка отправки сообщения")
		}
		return true
	case "/панель", "панель", "/admin", "admin":
		h.showKeyboard(chatID)
		return true
	}

	return false
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID int64, userID int64, password string) {
	h.service.ClearState(userID)

	err := h.service.Login(ctx, userID, password)
	switch {
	case err == nil:
		h.sendMessage(chatID, "✅ Аутентификация успешна!")
		h.showKeyboard(chatID)
	case errors.Is(err, common.ErrTooManyAttempts):
		h.sendMessage(chatID, "❌ Слишком много попыток, подождите час")
	case errors.Is(err, common.ErrWrongPassword):
		h.sendMessage(chatID, "❌ Неверный пароль")
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка входа в панель")
		h.sendMessage(chatID, "❌ Ошибка входа, попробуйте позже")
	}
}

// showKeyboard отображает клавиатуру панели.
func (h *Handler) showKeyboard(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnGrant),
			tgbotapi.NewKeyboardButton(btnAudit),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRevenue),
			tgbotapi.NewKeyboardButton(btnLogout),
		),
	)

	msg := tgbotapi.NewMessage(chatID, "✅ Панель открыта")
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры")
	}
}

// --- Начислить бонус (2 шага) ---

func (h *Handler) handleGrantUser(ctx context.Context, chatID int64, userID int64, text string) {
	target, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || target <= 0 {
		h.sendMessage(chatID, "❌ Нужен числовой Telegram ID. Попробуйте ещё раз:")
		return
	}

	h.sendMessage(chatID, "Сколько звёзд начислить?")
	h.service.SetState(userID, StateGrantAmount, &grantContext{TargetUserID: target})
}

func (h *Handler) handleGrantAmount(ctx context.Context, chatID int64, userID int64, text string) {
	state := h.service.GetState(userID)
	grant, ok := state.Data.(*grantContext)
	if !ok {
		h.service.ClearState(userID)
		return
	}

	stars, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || stars <= 0 {
		h.sendMessage(chatID, "❌ Нужно положительное число звёзд:")
		return
	}

	newBalance, err := h.service.GrantBonus(ctx, grant.TargetUserID, stars, userID)
	h.service.ClearState(userID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			h.sendMessage(chatID, "❌ Пользователь не найден")
			return
		}
		log.WithError(err).Error("Ошибка начисления бонуса")
		h.sendMessage(chatID, "❌ Ошибка начисления")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Начислено %s пользователю %d\n⭐ Его баланс: %s",
		common.FormatStars(stars), grant.TargetUserID, common.FormatStars(newBalance)))
}

// --- Сверка баланса ---

func (h *Handler) handleAuditUser(ctx context.Context, chatID int64, userID int64, text string) {
	target, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || target <= 0 {
		h.sendMessage(chatID, "❌ Нужен числовой Telegram ID:")
		return
	}
	h.service.ClearState(userID)

	balance, ledgerSum, ok, err := h.service.Audit(ctx, target)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			h.sendMessage(chatID, "❌ Пользователь не найден")
			return
		}
		log.WithError(err).Error("Ошибка сверки")
		h.sendMessage(chatID, "❌ Ошибка сверки")
		return
	}

	status := "✅ сходится"
	if !ok {
		status = "🚨 РАСХОЖДЕНИЕ"
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"Пользователь %d\nБаланс: %s\nПо леджеру: %s\nСверка: %s",
		target, common.FormatStars(balance), common.FormatStars(ledgerSum), status))
}

// --- Выручка ---

func (h *Handler) showRevenue(ctx context.Context, chatID int64) {
	// Отчёт с начала текущего месяца по Москве
	now := common.GetMoscowTime()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	report, err := h.service.Revenue(ctx, since)
	if err != nil {
		log.WithError(err).Error("Ошибка отчёта о выручке")
		h.sendMessage(chatID, "❌ Ошибка отчёта")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"📈 Выручка с %s\nРеальные платежи: %s\nБонусы и возвраты: %s",
		common.FormatDateTime(report.Since),
		common.FormatStars(report.RealIncome),
		common.FormatStars(report.BonusIncome)))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
