// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"generation_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Redis (очередь задач) ---
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Провайдер генерации ---
	ProviderBaseURL string        `envconfig:"PROVIDER_BASE_URL" required:"true"`
	ProviderAPIKey  string        `envconfig:"PROVIDER_API_KEY" required:"true"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"90s"`

	// --- Цены генерации (в звёздах) ---
	PriceImage      int64 `envconfig:"PRICE_IMAGE" default:"5"`
	PriceTTS        int64 `envconfig:"PRICE_TTS" default:"3"`
	PriceVideo      int64 `envconfig:"PRICE_VIDEO" default:"50"`
	PriceVoiceClone int64 `envconfig:"PRICE_VOICE_CLONE" default:"30"`
	PriceLipsync    int64 `envconfig:"PRICE_LIPSYNC" default:"40"`

	// --- Пополнение ---
	// Списки доступных пакетов. Сумма вне списка отклоняется до выставления счёта.
	TopupRubleOptionsRaw string  `envconfig:"TOPUP_RUBLE_OPTIONS" default:"299,499,999,1999"`
	TopupRubleOptions    []int64 `envconfig:"-"`
	TopupStarOptionsRaw  string  `envconfig:"TOPUP_STAR_OPTIONS" default:"50,100,250,500"`
	TopupStarOptions     []int64 `envconfig:"-"`
	// Курс: сколько звёзд начисляется за 1 рубль
	StarsPerRuble float64 `envconfig:"STARS_PER_RUBLE" default:"0.5"`
	// Токен платёжного провайдера для рублёвых счетов.
	// Пустой токен выключает рублёвое пополнение (остаются Telegram Stars).
	PaymentProviderToken string `envconfig:"PAYMENT_PROVIDER_TOKEN" default:""`

	// --- Очередь и повторы ---
	DispatchMaxAttempts int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3"`
	DispatchBaseDelay   time.Duration `envconfig:"DISPATCH_BASE_DELAY" default:"500ms"`
	// Задача, не получившая результат за это время, считается провалившейся (возврат звёзд)
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"30m"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureVideoEnabled      bool `envconfig:"FEATURE_VIDEO_ENABLED" default:"true"`
	FeatureVoiceCloneEnabled bool `envconfig:"FEATURE_VOICE_CLONE_ENABLED" default:"true"`
	FeatureLipsyncEnabled    bool `envconfig:"FEATURE_LIPSYNC_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Price возвращает цену генерации по типу задачи в звёздах.
// Неизвестный тип возвращает 0 — вызывающий код обязан проверить это
// до списания (иначе спишем 0 за мусорный запрос).
func (c *Config) Price(kind string) int64 {
	switch kind {
	case "image":
		return c.PriceImage
	case "tts":
		return c.PriceTTS
	case "video":
		return c.PriceVideo
	case "voice_clone":
		return c.PriceVoiceClone
	case "lipsync":
		return c.PriceLipsync
	}
	return 0
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.DispatchMaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS должен быть > 0")
	}
	if c.DispatchBaseDelay <= 0 {
		return fmt.Errorf("DISPATCH_BASE_DELAY должен быть > 0")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT должен быть > 0")
	}
	if c.StarsPerRuble <= 0 {
		return fmt.Errorf("STARS_PER_RUBLE должен быть > 0")
	}
	if len(c.TopupRubleOptions) == 0 || len(c.TopupStarOptions) == 0 {
		return fmt.Errorf("списки пакетов пополнения не могут быть пустыми")
	}
	for _, kind := range []string{"image", "tts", "video", "voice_clone", "lipsync"} {
		if c.Price(kind) <= 0 {
			return fmt.Errorf("цена для %q должна быть > 0", kind)
		}
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if cfg.TopupRubleOptions, err = parseInt64CSV(cfg.TopupRubleOptionsRaw); err != nil {
		return nil, fmt.Errorf("TOPUP_RUBLE_OPTIONS parse: %w", err)
	}
	if cfg.TopupStarOptions, err = parseInt64CSV(cfg.TopupStarOptionsRaw); err != nil {
		return nil, fmt.Errorf("TOPUP_STAR_OPTIONS parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
