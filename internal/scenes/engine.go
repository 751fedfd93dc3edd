// Package scenes — пошаговые диалоги (сцены) для задач, которым нужно
// несколько вопросов подряд: видео, клон голоса, липсинк, пополнение.
//
// У пользователя может быть не больше одной активной сцены. Некомандный
// текст бот отдаёт менеджеру сцен; если сессии нет — текст игнорируется
// роутером. Невалидный ввод повторяет текущий шаг, не теряя уже
// собранные ответы.
package scenes

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/features/billing"
)

// Notifier доставляет реплики сцены пользователю (реализуется ботом).
type Notifier interface {
	Notify(userID int64, text string)
}

// StepResult — решение шага после обработки ввода.
type StepResult int

const (
	// ResultRepeat — ввод не принят, остаёмся на шаге (данные сохранены).
	ResultRepeat StepResult = iota
	// ResultAdvance — шаг пройден, переходим к следующему.
	ResultAdvance
	// ResultLeave — сцена закончена (финальный шаг или отмена).
	ResultLeave
)

// Session — состояние пользователя внутри сцены.
type Session struct {
	UserID    int64
	SceneID   string
	StepIndex int
	Data      map[string]string // Собранные ответы по ключам шагов
	// DebitTxID — списание, сделанное внутри сцены. При панике сцена
	// закрывается и это списание возвращается.
	DebitTxID *int64
}

// Step — один вопрос сцены.
type Step struct {
	// Prompt отправляется при входе на шаг (и при повторе после
	// невалидного ввода, если Handle не ответил сам).
	Prompt string
	// Handle обрабатывает ответ пользователя. reply — текст для
	// пользователя ("" — ничего не отправлять, кроме промпта
	// следующего шага).
	Handle func(ctx context.Context, sess *Session, input string) (StepResult, string)
}

// Scene — именованная последовательность шагов.
type Scene struct {
	ID    string
	Steps []Step
}

// Manager ведёт активные сессии сцен. Потокобезопасен: апдейты
// обрабатываются в параллельных горутинах.
type Manager struct {
	mu       sync.Mutex
	scenes   map[string]*Scene
	sessions map[int64]*Session

	notifier Notifier
	refunds  *billing.RefundCoordinator
}

// NewManager создаёт менеджер сцен.
func NewManager(notifier Notifier, refunds *billing.RefundCoordinator) *Manager {
	return &Manager{
		scenes:   make(map[string]*Scene),
		sessions: make(map[int64]*Session),
		notifier: notifier,
		refunds:  refunds,
	}
}

// Register добавляет сцену. Вызывается на старте, до обработки апдейтов.
func (m *Manager) Register(scene *Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[scene.ID] = scene
}

// Enter запускает сцену для пользователя. Уже активная сцена
// перезапускается заново (накопленные ответы сбрасываются).
func (m *Manager) Enter(ctx context.Context, userID int64, sceneID string) error {
	m.mu.Lock()
	scene, ok := m.scenes[sceneID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("сцена %q не зарегистрирована", sceneID)
	}
	m.sessions[userID] = &Session{
		UserID:  userID,
		SceneID: sceneID,
		Data:    make(map[string]string),
	}
	m.mu.Unlock()

	m.notifier.Notify(userID, scene.Steps[0].Prompt)
	return nil
}

// Active сообщает, находится ли пользователь в сцене.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// Leave закрывает сцену пользователя (если была).
func (m *Manager) Leave(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// HandleInput отдаёт некомандный текст активной сцене.
// Возвращает false, если сцены нет — роутер решает, что делать с текстом.
//
// Паника внутри шага не роняет бота: сцена закрывается, записанное в
// сессии списание возвращается, пользователь получает нейтральный ответ.
func (m *Manager) HandleInput(ctx context.Context, userID int64, input string) (handled bool) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	scene := m.scenes[sess.SceneID]
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"user_id": userID,
				"scene":   sess.SceneID,
				"step":    sess.StepIndex,
				"panic":   r,
			}).Error("Паника в шаге сцены")
			m.abort(ctx, sess)
			handled = true
		}
	}()

	step := scene.Steps[sess.StepIndex]
	result, reply := step.Handle(ctx, sess, input)
	if reply != "" {
		m.notifier.Notify(userID, reply)
	}

	switch result {
	case ResultRepeat:
		if reply == "" {
			// Шаг не объяснил, что не так — повторяем вопрос
			m.notifier.Notify(userID, step.Prompt)
		}
	case ResultAdvance:
		sess.StepIndex++
		if sess.StepIndex >= len(scene.Steps) {
			// Сцена без явного Leave на последнем шаге — закрываем сами
			m.Leave(userID)
			return true
		}
		m.notifier.Notify(userID, scene.Steps[sess.StepIndex].Prompt)
	case ResultLeave:
		m.Leave(userID)
	}
	return true
}

// abort закрывает сцену после паники и возвращает списание, если шаг
// успел его записать в сессию.
func (m *Manager) abort(ctx context.Context, sess *Session) {
	m.Leave(sess.UserID)

	if sess.DebitTxID != nil {
		if _, err := m.refunds.Refund(ctx, *sess.DebitTxID, "сбой диалога"); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":     sess.UserID,
				"debit_tx_id": *sess.DebitTxID,
			}).Error("АЛЕРТ: возврат после сбоя сцены не прошёл")
		}
	}
	m.notifier.Notify(sess.UserID, "❌ Что-то пошло не так, начните заново")
}
