// Package generation — handlers.go обрабатывает прямые команды генерации:
// /картинка <промпт> и /озвучка <текст> — синхронные задачи без сцен.
// Фоновые типы (видео, войс, липсинк) собирают данные через сцены
// и приходят в оркестратор оттуда.
package generation

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
)

// Модели провайдера по умолчанию для прямых команд.
const (
	defaultImageModel = "flux-schnell"
	defaultTTSModel   = "tts-general-ru"
)

// Handler обрабатывает команды генерации.
type Handler struct {
	cfg  *config.Config
	orch *Orchestrator
	bot  *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд генерации.
func NewHandler(cfg *config.Config, orch *Orchestrator, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{cfg: cfg, orch: orch, bot: bot}
}

// HandleImage обрабатывает /картинка <промпт>.
func (h *Handler) HandleImage(ctx context.Context, chatID, userID int64, args []string) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		h.sendMessage(chatID,
			"🖼 Использование: /картинка <описание>\nНапример: /картинка кот в скафандре\n\nЦена: "+
				common.FormatStars(h.cfg.PriceImage))
		return
	}

	h.submit(ctx, chatID, userID, &JobRequest{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    KindImage,
		ModelID: defaultImageModel,
		Payload: Payload{Prompt: prompt},
		Cost:    h.cfg.PriceImage,
	})
}

// HandleTTS обрабатывает /озвучка <текст>.
func (h *Handler) HandleTTS(ctx context.Context, chatID, userID int64, args []string) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		h.sendMessage(chatID,
			"🔊 Использование: /озвучка <текст>\n\nЦена: "+common.FormatStars(h.cfg.PriceTTS))
		return
	}

	h.submit(ctx, chatID, userID, &JobRequest{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    KindTTS,
		ModelID: defaultTTSModel,
		Payload: Payload{Text: text},
		Cost:    h.cfg.PriceTTS,
	})
}

// submit отправляет запрос в оркестратор и переводит ошибки валидации
// в ответы пользователю. Отказ по балансу и результат оркестратор
// сообщает сам через Notifier.
func (h *Handler) submit(ctx context.Context, chatID, userID int64, req *JobRequest) {
	_, err := h.orch.Submit(ctx, req)
	switch {
	case err == nil:
		return
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrInvalidModel):
		h.sendMessage(chatID, "❌ Некорректный запрос, проверьте данные")
	case errors.Is(err, common.ErrDuplicateJob):
		h.sendMessage(chatID, "⏳ Эта задача уже в работе")
	default:
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"kind":    req.Kind,
		}).Error("Ошибка отправки задачи")
	}
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
