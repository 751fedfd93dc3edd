// Package admin — service.go содержит логику аутентификации, управления
// сессиями и state-машину пошаговых операторских действий.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/billing"
)

const (
	maxLoginFailures = 3
	loginLockWindow  = 1 * time.Hour
	sessionTTL       = 24 * time.Hour
	stateTTL         = 5 * time.Minute
)

// Service управляет операторской панелью.
type Service struct {
	auth   AuthStore
	store  billing.Store
	ledger *billing.Ledger
	cfg    *config.Config

	states   map[int64]*State // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис панели.
func NewService(auth AuthStore, store billing.Store, ledger *billing.Ledger, cfg *config.Config) *Service {
	return &Service{
		auth:   auth,
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		states: make(map[int64]*State),
	}
}

// IsOperator проверяет, входит ли пользователь в список операторов.
func (s *Service) IsOperator(userID int64) bool {
	for _, id := range s.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Login проверяет пароль оператора (Argon2id) и открывает сессию.
// Защита от brute-force: 3 неудачные попытки — блокировка на час.
func (s *Service) Login(ctx context.Context, userID int64, password string) error {
	if !s.IsOperator(userID) {
		return common.ErrNotAdmin
	}

	failures, err := s.auth.CountRecentFailures(ctx, userID, loginLockWindow)
	if err != nil {
		return fmt.Errorf("ошибка проверки попыток: %w", err)
	}
	if failures >= maxLoginFailures {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)
	if err := s.auth.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Warn("Ошибка записи попытки входа")
	}
	if !match {
		return common.ErrWrongPassword
	}

	session := &Session{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    time.Now().Add(sessionTTL),
	}
	if err := s.auth.CreateSession(ctx, session); err != nil {
		return err
	}

	log.WithField("user_id", userID).Info("Оператор вошёл в панель")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя живая сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.auth.GetActiveSession(ctx, userID)
	return err == nil && session != nil
}

// Logout закрывает сессии оператора.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.auth.DeactivateSession(ctx, userID)
}

// TouchSession обновляет отметку активности.
func (s *Service) TouchSession(ctx context.Context, userID int64) {
	if err := s.auth.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).Debug("Ошибка обновления активности сессии")
	}
}

// GrantBonus начисляет пользователю бонусные звёзды.
// Источник admin, категория BONUS: в выручку такие начисления не попадают.
func (s *Service) GrantBonus(ctx context.Context, targetUserID, stars int64, operatorID int64) (int64, error) {
	if stars <= 0 {
		return 0, common.ErrInvalidAmount
	}
	_, newBalance, err := s.store.CreditFunds(ctx, targetUserID, stars, billing.TxMeta{
		Source:      billing.SourceAdmin,
		Category:    billing.CategoryBonus,
		ServiceType: "admin_grant",
		Description: fmt.Sprintf("Бонус от оператора #%d", operatorID),
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"operator_id": operatorID,
		"user_id":     targetUserID,
		"stars":       stars,
		"balance":     newBalance,
	}).Info("Начислен бонус")
	return newBalance, nil
}

// Audit сверяет баланс пользователя с леджером.
func (s *Service) Audit(ctx context.Context, userID int64) (balance, ledgerSum int64, ok bool, err error) {
	return s.ledger.Audit(ctx, userID)
}

// Revenue считает выручку с начала периода.
func (s *Service) Revenue(ctx context.Context, since time.Time) (*billing.RevenueReport, error) {
	return s.ledger.Revenue(ctx, since)
}

// GetState возвращает текущее состояние диалога (nil, если истекло).
func (s *Service) GetState(userID int64) *State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	if time.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState переключает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, name string, data interface{}) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &State{
		Name:      name,
		Data:      data,
		ExpiresAt: time.Now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени (защита от timing attack)
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
