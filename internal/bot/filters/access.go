// Package filters отсекает апдейты, которые бот не обслуживает.
// Бот работает только в личных сообщениях; забаненные пользователи
// получают отказ до любой бизнес-логики.
package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/features/members"
)

type AccessFilter struct {
	memberService *members.Service
	bot           *tgbotapi.BotAPI
}

func NewAccessFilter(memberService *members.Service, bot *tgbotapi.BotAPI) *AccessFilter {
	return &AccessFilter{
		memberService: memberService,
		bot:           bot,
	}
}

// CheckAccess решает, обслуживать ли сообщение.
func (f *AccessFilter) CheckAccess(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "AccessFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		// Сервисные и канальные сообщения
		log.WithFields(log.Fields{
			"component": "AccessFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From, пропускаем")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "AccessFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	// Только личные сообщения: генерация и баланс — приватные вещи
	if !message.Chat.IsPrivate() {
		logger.Debug("deny: не личный чат")
		return false
	}

	if f.memberService.IsBanned(ctx, message.From.ID) {
		logger.Info("deny: пользователь забанен")
		return false
	}

	return true
}
