// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, Redis, репозитории, сервисы,
// обработчики, сцены и собирает всё в один объект App.
package app

import (
	"context"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/bot"
	"stargen.ru/generation-bot/internal/bot/filters"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/db/postgres"
	"stargen.ru/generation-bot/internal/db/redisdb"
	"stargen.ru/generation-bot/internal/features/admin"
	"stargen.ru/generation-bot/internal/features/billing"
	"stargen.ru/generation-bot/internal/features/generation"
	"stargen.ru/generation-bot/internal/features/members"
	"stargen.ru/generation-bot/internal/features/topup"
	"stargen.ru/generation-bot/internal/jobs"
	"stargen.ru/generation-bot/internal/scenes"
)

// App содержит все компоненты приложения.
type App struct {
	Bot        *bot.Bot
	Scheduler  *jobs.Scheduler
	Worker     *generation.JobWorker
	Reconciler *generation.Reconciler
	DB         *pgxpool.Pool
	Redis      *redis.Client
	BotAPI     *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Redis (очередь задач) ===
	redisClient, err := redisdb.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	// === 3. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// Уведомления пользователям нужны оркестратору и сценам раньше,
	// чем собран сам бот, поэтому шлём напрямую через API
	notifier := generation.NotifyFunc(func(userID int64, text string) {
		msg := tgbotapi.NewMessage(userID, text)
		if _, err := botAPI.Send(msg); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка отправки уведомления")
		}
	})

	// === 4. Репозитории ===
	memberRepo := members.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	jobRepo := generation.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 5. Сервисы биллинга ===
	memberService := members.NewService(memberRepo)
	gate := billing.NewGate(billingRepo)
	refunds := billing.NewRefundCoordinator(billingRepo)
	ledger := billing.NewLedger(billingRepo)

	// === 6. Конвейер генерации ===
	consumer, err := os.Hostname()
	if err != nil || consumer == "" {
		consumer = "genbot"
	}
	jobQueue := generation.NewRedisQueue(redisClient, generation.StreamJobs, consumer)
	completionQueue := generation.NewRedisQueue(redisClient, generation.StreamCompletions, consumer)
	provider := generation.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	dispatcher := generation.NewDispatcher(jobQueue, cfg.DispatchMaxAttempts, cfg.DispatchBaseDelay)
	orchestrator := generation.NewOrchestrator(
		jobRepo, billingRepo, gate, refunds, provider, dispatcher, notifier,
	)

	// === 7. Сервисы и обработчики фич ===
	topupService := topup.NewService(cfg, billingRepo)
	adminService := admin.NewService(adminRepo, billingRepo, ledger, cfg)

	billingHandler := billing.NewHandler(billingRepo, ledger, botAPI)
	generationHandler := generation.NewHandler(cfg, orchestrator, botAPI)
	topupHandler := topup.NewHandler(cfg, topupService, botAPI)
	adminHandler := admin.NewHandler(adminService, botAPI)

	// === 8. Сцены ===
	sceneManager := scenes.NewManager(notifier, refunds)
	sceneManager.Register(scenes.NewVideoScene(cfg, orchestrator))
	sceneManager.Register(scenes.NewVoiceCloneScene(cfg, orchestrator))
	sceneManager.Register(scenes.NewLipsyncScene(cfg, orchestrator))
	sceneManager.Register(scenes.NewRubleTopupScene(cfg, topupService, topupHandler))
	sceneManager.Register(scenes.NewStarTopupScene(cfg, topupService, topupHandler))

	// === 9. Фильтры ===
	accessFilter := filters.NewAccessFilter(memberService, botAPI)

	// === 10. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		memberService,
		billingRepo, billingHandler,
		generationHandler,
		topupHandler,
		adminHandler,
		sceneManager,
		accessFilter,
	)

	// === 11. Фоновые воркеры и планировщик ===
	worker := generation.NewJobWorker(jobQueue, orchestrator)
	reconciler := generation.NewReconciler(completionQueue, orchestrator)
	scheduler := jobs.NewScheduler(cfg, orchestrator)

	return &App{
		Bot:        b,
		Scheduler:  scheduler,
		Worker:     worker,
		Reconciler: reconciler,
		DB:         pool,
		Redis:      redisClient,
		BotAPI:     botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	// Выполняем миграции по порядку
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Billing},
		{3, migration003Jobs},
		{4, migration004Admin},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    locale VARCHAR(16) NOT NULL DEFAULT 'ru',
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_user_id ON users(user_id);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

var migration002Billing = `
CREATE TABLE IF NOT EXISTS balances (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL REFERENCES users(user_id),
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    direction VARCHAR(16) NOT NULL,
    category VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    source VARCHAR(32) NOT NULL,
    service_type VARCHAR(32) NOT NULL DEFAULT '',
    external_id TEXT NOT NULL DEFAULT '',
    refund_of BIGINT REFERENCES transactions(id),
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_created
    ON transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at
    ON transactions(created_at DESC);
-- Возврат по одному списанию допустим ровно один раз
CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_refund_of
    ON transactions(refund_of) WHERE refund_of IS NOT NULL;
-- Повторный платёжный колбэк с тем же инвойсом не создаёт второе начисление
CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_payment_external
    ON transactions(external_id) WHERE source = 'payment' AND external_id <> '';
`

var migration003Jobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    kind VARCHAR(32) NOT NULL,
    model_id VARCHAR(64) NOT NULL,
    payload JSONB,
    cost BIGINT NOT NULL,
    debit_tx_id BIGINT REFERENCES transactions(id),
    status VARCHAR(32) NOT NULL,
    correlation_id TEXT NOT NULL DEFAULT '',
    result_url TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_jobs_correlation_id
    ON jobs(correlation_id) WHERE correlation_id <> '';
`

var migration004Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT REFERENCES users(user_id),
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMP DEFAULT NOW(),
    expires_at TIMESTAMP,
    last_activity TIMESTAMP DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMP DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
`
