// Package admin реализует операторскую панель с парольной аутентификацией.
// models.go описывает структуры сессий и попыток входа.
package admin

import "time"

// Session — активная сессия оператора.
type Session struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// State — состояние диалога с оператором (конечный автомат).
// Панель работает по шагам: выбор действия → ввод пользователя → ввод суммы.
type State struct {
	Name      string      // Текущее состояние ("", "awaiting_password", ...)
	Data      interface{} // Данные контекста (выбранный пользователь и т.п.)
	ExpiresAt time.Time   // Когда состояние истекает (5 минут)
}

// Возможные состояния операторского диалога
const (
	StateNone             = ""                  // Нет активного состояния
	StateAwaitingPassword = "awaiting_password" // Ждём пароль
	StateGrantUser        = "grant_user"        // Ждём ID получателя бонуса
	StateGrantAmount      = "grant_amount"      // Ждём количество звёзд
	StateAuditUser        = "audit_user"        // Ждём ID для сверки
)
