package billing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stargen.ru/generation-bot/internal/common"
)

// seedUser создаёт пользователя и начисляет ему звёзды через леджер,
// чтобы инвариант «баланс == сумма по леджеру» соблюдался с самого начала.
func seedUser(t *testing.T, store *MemStore, userID, stars int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureBalance(ctx, userID))
	if stars > 0 {
		_, _, err := store.CreditFunds(ctx, userID, stars, TxMeta{
			Source:      SourceAdmin,
			Category:    CategoryBonus,
			Description: "стартовые звёзды",
		})
		require.NoError(t, err)
	}
}

// checkInvariant сверяет баланс с суммой COMPLETED-транзакций.
func checkInvariant(t *testing.T, store *MemStore, userID int64) {
	t.Helper()
	ctx := context.Background()
	balance, err := store.GetBalance(ctx, userID)
	require.NoError(t, err)
	sum, err := store.SumCompleted(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, balance, sum, "баланс разошёлся с леджером")
}

func TestGate_Reserve_Success(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	seedUser(t, store, 1, 20)

	dec, err := gate.Reserve(ctx, 1, 10, "video", "Генерация видео")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	assert.EqualValues(t, 10, dec.NewBalance)
	assert.NotZero(t, dec.TxID)

	// Ровно одна EXPENSE-транзакция на 10 звёзд
	tx, err := store.GetTransaction(ctx, dec.TxID)
	require.NoError(t, err)
	assert.Equal(t, DirectionExpense, tx.Direction)
	assert.EqualValues(t, 10, tx.Amount)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, "video", tx.ServiceType)

	// seed-кредит + списание
	assert.Equal(t, 2, store.CountTransactions(1))
	checkInvariant(t, store, 1)
}

func TestGate_Reserve_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	seedUser(t, store, 1, 5)

	dec, err := gate.Reserve(ctx, 1, 10, "video", "Генерация видео")
	require.NoError(t, err, "нехватка звёзд — бизнес-исход, не ошибка")
	require.False(t, dec.Allowed)
	assert.Equal(t, ReasonInsufficientFunds, dec.Reason)
	assert.EqualValues(t, 5, dec.NewBalance)

	// Отказ — строго no-op: баланс и число транзакций не изменились
	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, balance)
	assert.Equal(t, 1, store.CountTransactions(1), "при отказе не должно появиться новых транзакций")
	checkInvariant(t, store, 1)
}

func TestGate_Reserve_UserNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)

	dec, err := gate.Reserve(ctx, 999, 10, "video", "Генерация видео")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	assert.Equal(t, ReasonUserNotFound, dec.Reason)
}

func TestGate_Reserve_InvalidCost(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	seedUser(t, store, 1, 20)

	for _, cost := range []int64{0, -5} {
		_, err := gate.Reserve(ctx, 1, cost, "video", "")
		assert.ErrorIs(t, err, common.ErrInvalidAmount)
	}
	// Баланс не тронут
	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 20, balance)
}

// Два конкурентных списания при балансе на одно: пройти должно ровно одно.
func TestGate_Reserve_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	seedUser(t, store, 1, 10)

	var wg sync.WaitGroup
	decisions := make([]*Decision, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = gate.Reserve(ctx, 1, 10, "video", "Генерация видео")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	allowed := 0
	for _, dec := range decisions {
		if dec.Allowed {
			allowed++
		} else {
			assert.Equal(t, ReasonInsufficientFunds, dec.Reason)
		}
	}
	assert.Equal(t, 1, allowed, "из двух конкурентных списаний должно пройти ровно одно")

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance)
	checkInvariant(t, store, 1)
}
