package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Правило категоризации: доход из реального платежа всегда REAL,
// что бы ни лежало в хранимом поле category.
func TestTransaction_EffectiveCategory(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		source    Source
		stored    Category
		want      Category
	}{
		{"платёж с хранимой BONUS всё равно REAL", DirectionIncome, SourcePayment, CategoryBonus, CategoryReal},
		{"платёж с хранимой REAL остаётся REAL", DirectionIncome, SourcePayment, CategoryReal, CategoryReal},
		{"возврат остаётся BONUS", DirectionIncome, SourceRefund, CategoryBonus, CategoryBonus},
		{"бонус админа остаётся BONUS", DirectionIncome, SourceAdmin, CategoryBonus, CategoryBonus},
		{"списание не переопределяется", DirectionExpense, SourceGeneration, CategoryReal, CategoryReal},
		{"списание с BONUS остаётся BONUS", DirectionExpense, SourceGeneration, CategoryBonus, CategoryBonus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Direction: tt.direction, Source: tt.source, Category: tt.stored}
			assert.Equal(t, tt.want, tx.EffectiveCategory())
		})
	}
}

func TestTransaction_SignedAmount(t *testing.T) {
	income := &Transaction{Direction: DirectionIncome, Amount: 50}
	expense := &Transaction{Direction: DirectionExpense, Amount: 30}
	assert.EqualValues(t, 50, income.SignedAmount())
	assert.EqualValues(t, -30, expense.SignedAmount())
}

// Отчёт о выручке обязан считать платёж с хранимой категорией BONUS как REAL.
func TestLedger_Revenue_UsesEffectiveCategory(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	ledger := NewLedger(store)
	require.NoError(t, store.EnsureBalance(ctx, 1))

	// Реальный платёж, но с «испорченной» хранимой категорией
	_, _, err := store.CreditFunds(ctx, 1, 100, TxMeta{
		Source:      SourcePayment,
		Category:    CategoryBonus,
		ExternalID:  "inv-1",
		Description: "Пополнение 100 звёзд",
	})
	require.NoError(t, err)

	// Промо-начисление
	_, _, err = store.CreditFunds(ctx, 1, 30, TxMeta{
		Source:      SourceAdmin,
		Category:    CategoryBonus,
		Description: "Бонус",
	})
	require.NoError(t, err)

	report, err := ledger.Revenue(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 100, report.RealIncome, "платёж обязан попасть в REAL-выручку")
	assert.EqualValues(t, 30, report.BonusIncome)
}

// Дубликат платёжного колбэка по external_id не зачисляется второй раз.
func TestStore_DuplicatePayment(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.EnsureBalance(ctx, 1))

	meta := TxMeta{Source: SourcePayment, Category: CategoryReal, ExternalID: "inv-42"}
	_, _, err := store.CreditFunds(ctx, 1, 100, meta)
	require.NoError(t, err)

	_, _, err = store.CreditFunds(ctx, 1, 100, meta)
	require.Error(t, err)

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)
}

func TestLedger_Audit(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	ledger := NewLedger(store)
	seedUser(t, store, 1, 50)

	balance, sum, ok, err := ledger.Audit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, balance, sum)
}
