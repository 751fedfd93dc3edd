// Package billing — ledger.go содержит запросы к леджеру: история,
// сверка баланса и отчёт о выручке.
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stargen.ru/generation-bot/internal/common"
)

// Ledger предоставляет чтение леджера и отчётность.
type Ledger struct {
	store Store
}

// NewLedger создаёт сервис леджера поверх хранилища.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// SumCompleted возвращает сумму COMPLETED-транзакций пользователя.
func (l *Ledger) SumCompleted(ctx context.Context, userID int64) (int64, error) {
	return l.store.SumCompleted(ctx, userID)
}

// Audit сверяет баланс пользователя с суммой по леджеру.
// Расхождение — серьёзный инцидент: баланс обязан быть проекцией леджера.
func (l *Ledger) Audit(ctx context.Context, userID int64) (balance, ledgerSum int64, ok bool, err error) {
	balance, err = l.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, 0, false, err
	}
	ledgerSum, err = l.store.SumCompleted(ctx, userID)
	if err != nil {
		return 0, 0, false, err
	}
	return balance, ledgerSum, balance == ledgerSum, nil
}

// RevenueReport — выручка за период.
type RevenueReport struct {
	Since       time.Time
	RealIncome  int64 // Доходы категории REAL (реальные платежи)
	BonusIncome int64 // Промо-начисления и возвраты
}

// Revenue считает выручку за период. Категория каждой транзакции берётся
// через EffectiveCategory — единственное место, где применяется правило
// «доход из платежа всегда REAL».
func (l *Ledger) Revenue(ctx context.Context, since time.Time) (*RevenueReport, error) {
	txs, err := l.store.ListCompletedIncome(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения леджера: %w", err)
	}

	report := &RevenueReport{Since: since}
	for _, t := range txs {
		switch t.EffectiveCategory() {
		case CategoryReal:
			report.RealIncome += t.Amount
		default:
			report.BonusIncome += t.Amount
		}
	}
	return report, nil
}

// FormatHistory возвращает форматированную историю последних транзакций.
// Последние 10 операций. Если больше 5 — остальные оборачиваются в спойлер.
func (l *Ledger) FormatHistory(ctx context.Context, userID int64) (string, error) {
	transactions, err := l.store.ListTransactions(ctx, userID, 10)
	if err != nil {
		return "", err
	}

	if len(transactions) == 0 {
		return "📋 У вас пока нет транзакций", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d операций:\n\n", len(transactions)))

	// Формируем строки транзакций
	var lines []string
	for i, tx := range transactions {
		line := fmt.Sprintf("%d. %s | %s | %s",
			i+1,
			common.FormatDateTime(tx.CreatedAt),
			common.FormatStarsAmount(tx.SignedAmount()),
			tx.Description,
		)
		lines = append(lines, line)
	}

	// Если больше 5 — оборачиваем хвост в спойлер (||текст||)
	if len(lines) > 5 {
		for _, line := range lines[:5] {
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n||")
		for _, line := range lines[5:] {
			sb.WriteString(line + "\n")
		}
		sb.WriteString("||")
	} else {
		for _, line := range lines {
			sb.WriteString(line + "\n")
		}
	}

	return sb.String(), nil
}
