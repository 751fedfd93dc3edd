package topup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/billing"
)

func testConfig() *config.Config {
	return &config.Config{
		TopupRubleOptions: []int64{299, 499, 999, 1999},
		TopupStarOptions:  []int64{50, 100, 250, 500},
		StarsPerRuble:     0.5,
	}
}

func TestService_BuildInvoice_RubleConversion(t *testing.T) {
	s := NewService(testConfig(), billing.NewMemStore())

	inv, err := s.BuildInvoice(1, CurrencyRubles, 299)
	require.NoError(t, err)
	assert.EqualValues(t, 299, inv.Amount)
	// 299 * 0.5 = 149.5 → округляем до 150
	assert.EqualValues(t, 150, inv.Stars)
	assert.Contains(t, inv.Payload, "topup:rub:150:")
}

func TestService_BuildInvoice_StarsOneToOne(t *testing.T) {
	s := NewService(testConfig(), billing.NewMemStore())

	inv, err := s.BuildInvoice(1, CurrencyStars, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, inv.Stars)
}

func TestService_BuildInvoice_RejectsUnknownAmount(t *testing.T) {
	s := NewService(testConfig(), billing.NewMemStore())

	// Сумма вне списка пакетов — счёт не выставляется
	_, err := s.BuildInvoice(1, CurrencyRubles, 300)
	require.ErrorIs(t, err, common.ErrInvalidTopupOption)

	_, err = s.BuildInvoice(1, CurrencyStars, 99)
	require.ErrorIs(t, err, common.ErrInvalidTopupOption)

	_, err = s.BuildInvoice(1, "eur", 299)
	require.ErrorIs(t, err, common.ErrInvalidTopupOption)
}

func TestService_Credit_RealIncome(t *testing.T) {
	ctx := context.Background()
	store := billing.NewMemStore()
	s := NewService(testConfig(), store)
	require.NoError(t, store.EnsureBalance(ctx, 1))

	inv, err := s.BuildInvoice(1, CurrencyStars, 100)
	require.NoError(t, err)

	balance, credited, err := s.Credit(ctx, 1, inv.Payload)
	require.NoError(t, err)
	assert.True(t, credited)
	assert.EqualValues(t, 100, balance)

	// Начисление по платежу всегда REAL, даже не глядя на хранимую категорию
	txs, err := store.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, billing.SourcePayment, txs[0].Source)
	assert.Equal(t, billing.CategoryReal, txs[0].EffectiveCategory())
	assert.Equal(t, inv.Payload, txs[0].ExternalID)
}

func TestService_Credit_DuplicateCallback(t *testing.T) {
	ctx := context.Background()
	store := billing.NewMemStore()
	s := NewService(testConfig(), store)
	require.NoError(t, store.EnsureBalance(ctx, 1))

	inv, err := s.BuildInvoice(1, CurrencyStars, 100)
	require.NoError(t, err)

	_, credited, err := s.Credit(ctx, 1, inv.Payload)
	require.NoError(t, err)
	require.True(t, credited)

	// Telegram доставил SuccessfulPayment повторно — второго начисления нет
	balance, credited, err := s.Credit(ctx, 1, inv.Payload)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.EqualValues(t, 100, balance)
	assert.Equal(t, 1, store.CountTransactions(1))
}

func TestService_Credit_BadPayload(t *testing.T) {
	ctx := context.Background()
	s := NewService(testConfig(), billing.NewMemStore())

	_, _, err := s.Credit(ctx, 1, "мусор")
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, _, err = s.Credit(ctx, 1, "topup:star:-5:abc")
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestService_ValidPayload(t *testing.T) {
	s := NewService(testConfig(), billing.NewMemStore())
	inv, err := s.BuildInvoice(1, CurrencyStars, 50)
	require.NoError(t, err)

	assert.True(t, s.ValidPayload(inv.Payload))
	assert.False(t, s.ValidPayload("order:123"))
	assert.False(t, s.ValidPayload(""))
}
