// Package bot содержит главный модуль бота — инициализацию, запуск и
// остановку. bot.go принимает апдейты, прогоняет их через фильтры и
// маршрутизирует: команды → обработчики фич, некомандный текст →
// активная сцена, платёжные события → topup.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/bot/filters"
	"stargen.ru/generation-bot/internal/bot/middleware"
	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/admin"
	"stargen.ru/generation-bot/internal/features/billing"
	"stargen.ru/generation-bot/internal/features/generation"
	"stargen.ru/generation-bot/internal/features/members"
	"stargen.ru/generation-bot/internal/features/topup"
	"stargen.ru/generation-bot/internal/scenes"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	accessFilter *filters.AccessFilter
	rateLimiter  *middleware.RateLimiter

	memberService     *members.Service
	billingStore      billing.Store
	billingHandler    *billing.Handler
	generationHandler *generation.Handler
	topupHandler      *topup.Handler
	adminHandler      *admin.Handler

	sceneManager *scenes.Manager

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	memberService *members.Service,
	billingStore billing.Store,
	billingHandler *billing.Handler,
	generationHandler *generation.Handler,
	topupHandler *topup.Handler,
	adminHandler *admin.Handler,
	sceneManager *scenes.Manager,
	accessFilter *filters.AccessFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:               api,
		cfg:               cfg,
		accessFilter:      accessFilter,
		rateLimiter:       middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		memberService:     memberService,
		billingStore:      billingStore,
		billingHandler:    billingHandler,
		generationHandler: generationHandler,
		topupHandler:      topupHandler,
		adminHandler:      adminHandler,
		sceneManager:      sceneManager,
		parser:            NewCommandParser(),
		inflight:          make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Платёжные события и callback-кнопки идут мимо текстового роутинга
	if update.PreCheckoutQuery != nil {
		b.topupHandler.HandlePreCheckout(ctx, update.PreCheckoutQuery)
		return
	}
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}
	message := update.Message

	middleware.LogMessage(message)

	if !b.accessFilter.CheckAccess(ctx, message) {
		return
	}

	if message.From != nil && !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// Регистрация на каждый апдейт: новый пользователь создаётся,
	// у существующего обновляется username. Ошибки нельзя глотать молча,
	// иначе потом будет «оно не работает».
	if err := b.memberService.EnsureUser(ctx, userID,
		message.From.UserName, message.From.FirstName, message.From.LastName,
		message.From.LanguageCode,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureUser failed")
	}
	if err := b.billingStore.EnsureBalance(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureBalance failed")
	}

	// Успешный платёж приходит отдельным сообщением без текста
	if message.SuccessfulPayment != nil {
		b.topupHandler.HandleSuccessfulPayment(ctx, message)
		return
	}

	if message.Text == "" {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		// Любая команда выбрасывает из активной сцены
		b.sceneManager.Leave(userID)
		b.routeCommand(ctx, chatID, userID, cmd, args)
		return
	}

	// Некомандный текст: сначала операторская панель, потом сцены
	if b.adminHandler.HandleMessage(ctx, chatID, userID, message.Text) {
		return
	}
	if b.sceneManager.HandleInput(ctx, userID, message.Text) {
		return
	}

	b.sendMessage(chatID, "Не понял. Список команд: /start")
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "start", "старт", "help", "помощь":
		b.sendMessage(chatID, welcomeText(b.cfg))

	case "баланс", "balance":
		b.billingHandler.HandleBalance(ctx, chatID, userID)

	case "транзакции", "история":
		b.billingHandler.HandleTransactions(ctx, chatID, userID)

	case "картинка", "image":
		b.generationHandler.HandleImage(ctx, chatID, userID, args)

	case "озвучка", "tts":
		b.generationHandler.HandleTTS(ctx, chatID, userID, args)

	case "видео", "video":
		if !b.cfg.FeatureVideoEnabled {
			b.sendMessage(chatID, "🎬 Генерация видео временно отключена")
			return
		}
		b.enterScene(ctx, chatID, userID, scenes.SceneVideo)

	case "войс", "voice":
		if !b.cfg.FeatureVoiceCloneEnabled {
			b.sendMessage(chatID, "🎙 Клонирование голоса временно отключено")
			return
		}
		b.enterScene(ctx, chatID, userID, scenes.SceneVoiceClone)

	case "липсинк", "lipsync":
		if !b.cfg.FeatureLipsyncEnabled {
			b.sendMessage(chatID, "👄 Липсинк временно отключён")
			return
		}
		b.enterScene(ctx, chatID, userID, scenes.SceneLipsync)

	case "пополнить", "topup":
		b.topupHandler.HandleTopup(ctx, chatID)

	case "отмена", "cancel":
		b.sceneManager.Leave(userID)
		b.sendMessage(chatID, "Ок, отменил")

	case "панель", "admin":
		// Панель сама проверит права и запросит пароль
		if chatID == userID {
			b.adminHandler.HandleMessage(ctx, chatID, userID, "/"+cmd)
		}
	}
}

// handleCallback обрабатывает нажатия inline-кнопок.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil {
		return
	}
	if b.memberService.IsBanned(ctx, query.From.ID) {
		return
	}

	if strings.HasPrefix(query.Data, topup.CallbackPrefix+":") {
		b.topupHandler.HandleCallback(ctx, query)
		return
	}

	log.WithField("data", query.Data).Debug("Неизвестный callback")
}

// enterScene запускает сцену и сообщает об ошибке пользователю.
func (b *Bot) enterScene(ctx context.Context, chatID, userID int64, sceneID string) {
	if err := b.sceneManager.Enter(ctx, userID, sceneID); err != nil {
		log.WithError(err).WithField("scene", sceneID).Error("Ошибка входа в сцену")
		b.sendMessage(chatID, "❌ Не получилось начать, попробуйте позже")
	}
}

func welcomeText(cfg *config.Config) string {
	var sb strings.Builder
	sb.WriteString("👋 Я генерирую контент за звёзды.\n\n")
	sb.WriteString("⭐ Баланс и история:\n/баланс — текущий баланс\n/транзакции — последние операции\n\n")
	sb.WriteString("🎨 Генерация:\n")
	sb.WriteString("/картинка <описание> — ")
	sb.WriteString(common.FormatStars(cfg.PriceImage) + "\n")
	sb.WriteString("/озвучка <текст> — ")
	sb.WriteString(common.FormatStars(cfg.PriceTTS) + "\n")
	if cfg.FeatureVideoEnabled {
		sb.WriteString("/видео — " + common.FormatStars(cfg.PriceVideo) + "\n")
	}
	if cfg.FeatureVoiceCloneEnabled {
		sb.WriteString("/войс — " + common.FormatStars(cfg.PriceVoiceClone) + "\n")
	}
	if cfg.FeatureLipsyncEnabled {
		sb.WriteString("/липсинк — " + common.FormatStars(cfg.PriceLipsync) + "\n")
	}
	sb.WriteString("\n💰 /пополнить — купить звёзды\n/отмена — выйти из диалога")
	return sb.String()
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	text = strings.TrimSpace(text)
	parts := strings.Fields(text)

	if len(parts) == 0 {
		return "", nil, false
	}

	// Срезаем @botname из команд вида /баланс@stargen_bot
	command := strings.ToLower(parts[0])
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
