// Package billing — memstore.go реализует Store на in-memory структурах.
// Используется для dev/test окружений: семантика полностью повторяет
// Repository (атомарность, идемпотентность возвратов), но без PostgreSQL.
package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stargen.ru/generation-bot/internal/common"
)

// MemStore — потокобезопасное in-memory хранилище балансов и леджера.
// Один мьютекс на всё хранилище играет роль блокировки строки баланса.
type MemStore struct {
	mu           sync.Mutex
	balances     map[int64]int64
	transactions []*Transaction
	nextID       int64
	refunded     map[int64]bool   // origTxID → возврат уже был
	payments     map[string]bool  // external_id платежей → уже зачислен
}

// NewMemStore создаёт пустое in-memory хранилище.
func NewMemStore() *MemStore {
	return &MemStore{
		balances: make(map[int64]int64),
		nextID:   1,
		refunded: make(map[int64]bool),
		payments: make(map[string]bool),
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) EnsureBalance(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = 0
	}
	return nil
}

func (s *MemStore) GetBalance(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[userID]
	if !ok {
		return 0, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
	}
	return balance, nil
}

func (s *MemStore) ReserveFunds(ctx context.Context, userID, cost int64, meta TxMeta) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[userID]
	if !ok {
		return 0, 0, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
	}
	if balance < cost {
		// Никаких мутаций при отказе
		return 0, balance, fmt.Errorf("нужно %d, есть %d: %w", cost, balance, common.ErrInsufficientFunds)
	}

	s.balances[userID] = balance - cost
	txID := s.appendLocked(&Transaction{
		UserID:      userID,
		Amount:      cost,
		Direction:   DirectionExpense,
		Category:    meta.Category,
		Status:      StatusCompleted,
		Source:      meta.Source,
		ServiceType: meta.ServiceType,
		ExternalID:  meta.ExternalID,
		Description: meta.Description,
	})
	return txID, balance - cost, nil
}

func (s *MemStore) CreditFunds(ctx context.Context, userID, amount int64, meta TxMeta) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditLocked(userID, amount, meta, nil)
}

func (s *MemStore) creditLocked(userID, amount int64, meta TxMeta, refundOf *int64) (int64, int64, error) {
	balance, ok := s.balances[userID]
	if !ok {
		return 0, 0, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
	}

	// Идемпотентность платёжных колбэков по external_id
	if meta.Source == SourcePayment && meta.ExternalID != "" {
		if s.payments[meta.ExternalID] {
			return 0, 0, common.ErrDuplicatePayment
		}
		s.payments[meta.ExternalID] = true
	}

	s.balances[userID] = balance + amount
	txID := s.appendLocked(&Transaction{
		UserID:      userID,
		Amount:      amount,
		Direction:   DirectionIncome,
		Category:    meta.Category,
		Status:      StatusCompleted,
		Source:      meta.Source,
		ServiceType: meta.ServiceType,
		ExternalID:  meta.ExternalID,
		RefundOf:    refundOf,
		Description: meta.Description,
	})
	return txID, balance + amount, nil
}

func (s *MemStore) RefundDebit(ctx context.Context, origTxID int64, reason string) (*RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orig *Transaction
	for _, t := range s.transactions {
		if t.ID == origTxID {
			orig = t
			break
		}
	}
	if orig == nil || orig.Direction != DirectionExpense || orig.Status != StatusCompleted {
		return nil, fmt.Errorf("tx_id=%d: %w", origTxID, common.ErrTransactionNotFound)
	}
	if s.refunded[origTxID] {
		return nil, common.ErrAlreadyRefunded
	}

	meta := TxMeta{
		Source:      SourceRefund,
		Category:    CategoryBonus,
		ServiceType: orig.ServiceType,
		Description: reason,
	}
	refundTxID, newBalance, err := s.creditLocked(orig.UserID, orig.Amount, meta, &origTxID)
	if err != nil {
		return nil, err
	}
	s.refunded[origTxID] = true

	return &RefundResult{
		RefundTxID: refundTxID,
		UserID:     orig.UserID,
		Amount:     orig.Amount,
		NewBalance: newBalance,
	}, nil
}

func (s *MemStore) GetTransaction(ctx context.Context, txID int64) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.ID == txID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tx_id=%d: %w", txID, common.ErrTransactionNotFound)
}

func (s *MemStore) ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	// Новые первыми
	for i := len(s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.transactions[i].UserID == userID {
			cp := *s.transactions[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) ListCompletedIncome(ctx context.Context, since time.Time) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for _, t := range s.transactions {
		if t.Direction == DirectionIncome && t.Status == StatusCompleted && !t.CreatedAt.Before(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) SumCompleted(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.transactions {
		if t.UserID == userID && t.Status == StatusCompleted {
			sum += t.SignedAmount()
		}
	}
	return sum, nil
}

// CountTransactions возвращает число транзакций пользователя (для тестов и аудита).
func (s *MemStore) CountTransactions(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.transactions {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// SetBalance выставляет баланс напрямую (только для тестов: создаёт
// пользователя с нужным числом звёзд без записи в леджер).
func (s *MemStore) SetBalance(userID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

func (s *MemStore) appendLocked(t *Transaction) int64 {
	t.ID = s.nextID
	s.nextID++
	t.CreatedAt = time.Now()
	s.transactions = append(s.transactions, t)
	return t.ID
}
