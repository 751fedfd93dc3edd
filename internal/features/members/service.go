// Package members — service.go содержит бизнес-логику управления пользователями.
// Сервис координирует регистрацию при первом контакте, проверку бана
// и обновление информации.
package members

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Service управляет пользователями бота.
type Service struct {
	repo *Repository // Репозиторий для работы с таблицей users
}

// NewService создаёт новый сервис пользователей.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// EnsureUser гарантирует, что пользователь зарегистрирован.
// Вызывается на каждый апдейт: новый пользователь создаётся,
// у существующего обновляются имя и username.
func (s *Service) EnsureUser(ctx context.Context, userID int64, username, firstName, lastName, languageCode string) error {
	locale := languageCode
	if locale == "" {
		locale = "ru"
	}
	u := &User{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Locale:    locale,
		IsBanned:  false,
	}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	return nil
}

// GetByUserID возвращает пользователя по Telegram ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// GetByUsername возвращает пользователя по @username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// IsBanned проверяет, забанен ли пользователь.
// При ошибке чтения считаем, что не забанен (бот не должен молчать из-за сбоя БД).
func (s *Service) IsBanned(ctx context.Context, userID int64) bool {
	u, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return false
	}
	return u.IsBanned
}

// Ban банит пользователя (доступ закрывается фильтром доступа).
func (s *Service) Ban(ctx context.Context, userID int64) error {
	if err := s.repo.SetBanned(ctx, userID, true); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Пользователь забанен")
	return nil
}

// Unban снимает бан.
func (s *Service) Unban(ctx context.Context, userID int64) error {
	if err := s.repo.SetBanned(ctx, userID, false); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Бан снят")
	return nil
}
