// Package admin — memstore.go: in-memory реализация AuthStore для тестов.
package admin

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemAuthStore хранит сессии и попытки входа в памяти.
type MemAuthStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	attempts []LoginAttempt
}

// NewMemAuthStore создаёт пустое хранилище.
func NewMemAuthStore() *MemAuthStore {
	return &MemAuthStore{sessions: make(map[int64]*Session)}
}

var _ AuthStore = (*MemAuthStore)(nil)

func (s *MemAuthStore) CreateSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	cp.AuthenticatedAt = time.Now()
	cp.LastActivity = cp.AuthenticatedAt
	cp.IsActive = true
	s.sessions[session.UserID] = &cp
	return nil
}

func (s *MemAuthStore) GetActiveSession(ctx context.Context, userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || !sess.IsActive || time.Now().After(sess.ExpiresAt) {
		return nil, fmt.Errorf("активная сессия не найдена")
	}
	cp := *sess
	return &cp, nil
}

func (s *MemAuthStore) DeactivateSession(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.IsActive = false
	}
	return nil
}

func (s *MemAuthStore) UpdateActivity(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok && sess.IsActive {
		sess.LastActivity = time.Now()
	}
	return nil
}

func (s *MemAuthStore) LogAttempt(ctx context.Context, userID int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, LoginAttempt{
		UserID:      userID,
		AttemptTime: time.Now(),
		Success:     success,
	})
	return nil
}

func (s *MemAuthStore) CountRecentFailures(ctx context.Context, userID int64, period time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	since := time.Now().Add(-period)
	count := 0
	for _, a := range s.attempts {
		if a.UserID == userID && !a.Success && a.AttemptTime.After(since) {
			count++
		}
	}
	return count, nil
}
