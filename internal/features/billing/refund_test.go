package billing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Списание прошло, провайдер упал: возврат восстанавливает баланс,
// по задаче остаётся ровно две транзакции (EXPENSE + INCOME).
func TestRefund_RestoresBalance(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	rc := NewRefundCoordinator(store)
	seedUser(t, store, 1, 20)

	dec, err := gate.Reserve(ctx, 1, 10, "video", "Генерация видео")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	require.EqualValues(t, 10, dec.NewBalance)

	ok, err := rc.Refund(ctx, dec.TxID, "сбой провайдера")
	require.NoError(t, err)
	require.True(t, ok)

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 20, balance)

	// seed + EXPENSE + INCOME = 3; по самой задаче — две
	assert.Equal(t, 3, store.CountTransactions(1))

	// Возврат — INCOME/BONUS на ту же сумму со ссылкой на исходное списание
	txs, err := store.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	refund := txs[0]
	assert.Equal(t, DirectionIncome, refund.Direction)
	assert.Equal(t, CategoryBonus, refund.Category)
	assert.EqualValues(t, 10, refund.Amount)
	require.NotNil(t, refund.RefundOf)
	assert.Equal(t, dec.TxID, *refund.RefundOf)

	checkInvariant(t, store, 1)
}

// Повторный возврат по одному списанию — идемпотентный no-op.
func TestRefund_AtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	rc := NewRefundCoordinator(store)
	seedUser(t, store, 1, 20)

	dec, err := gate.Reserve(ctx, 1, 10, "video", "Генерация видео")
	require.NoError(t, err)

	ok, err := rc.Refund(ctx, dec.TxID, "сбой провайдера")
	require.NoError(t, err)
	require.True(t, ok)

	// Второй вызов: успех для вызывающего, но без второго начисления
	ok, err = rc.Refund(ctx, dec.TxID, "сбой провайдера")
	require.NoError(t, err)
	require.True(t, ok)

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 20, balance, "возврат не должен начисляться дважды")
	assert.Equal(t, 3, store.CountTransactions(1))
	checkInvariant(t, store, 1)
}

// Гонка двух возвратов одного списания: начисление ровно одно.
func TestRefund_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	gate := NewGate(store)
	rc := NewRefundCoordinator(store)
	seedUser(t, store, 1, 20)

	dec, err := gate.Reserve(ctx, 1, 10, "video", "Генерация видео")
	require.NoError(t, err)

	var wg sync.WaitGroup
	oks := make([]bool, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			oks[i], errs[i] = rc.Refund(ctx, dec.TxID, "сбой провайдера")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.True(t, oks[i], "оба вызова должны увидеть успех")
	}

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 20, balance)
	assert.Equal(t, 3, store.CountTransactions(1))
	checkInvariant(t, store, 1)
}

// Возврат по несуществующей или не-расходной транзакции — ошибка.
func TestRefund_UnknownTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	rc := NewRefundCoordinator(store)
	seedUser(t, store, 1, 20)

	ok, err := rc.Refund(ctx, 777, "сбой провайдера")
	require.Error(t, err)
	assert.False(t, ok)

	// Попытка вернуть по INCOME-транзакции (seed-кредиту)
	txs, err := store.ListTransactions(ctx, 1, 1)
	require.NoError(t, err)
	ok, err = rc.Refund(ctx, txs[0].ID, "сбой провайдера")
	require.Error(t, err)
	assert.False(t, ok)
}
