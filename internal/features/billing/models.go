// Package billing управляет звёздным балансом пользователей.
// models.go описывает структуры балансов и транзакций и единственное
// место, где живёт правило категоризации доходов.
package billing

import "time"

// Balance представляет баланс пользователя.
// Каждый пользователь имеет ровно одну запись в таблице balances —
// это единственный источник правды о доступных звёздах.
type Balance struct {
	ID        int64     `db:"id"`      // ID записи
	UserID    int64     `db:"user_id"` // Telegram user ID
	Balance   int64     `db:"balance"` // Текущий баланс (не бывает отрицательным)
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Direction — направление движения звёзд.
type Direction string

const (
	DirectionIncome  Direction = "INCOME"  // Начисление
	DirectionExpense Direction = "EXPENSE" // Списание
)

// Category — категория транзакции для финансовой отчётности.
type Category string

const (
	// CategoryReal — звёзды, обеспеченные реальным платежом
	CategoryReal Category = "REAL"
	// CategoryBonus — промо-начисления и возвраты
	CategoryBonus Category = "BONUS"
)

// Status — статус транзакции.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Source — происхождение транзакции.
type Source string

const (
	SourcePayment    Source = "payment"    // Реальный платёж (инвойс)
	SourceGeneration Source = "generation" // Списание за задачу генерации
	SourceRefund     Source = "refund"     // Возврат за провалившуюся задачу
	SourceAdmin      Source = "admin"      // Ручное начисление администратором
)

// Transaction представляет одну операцию со звёздами.
// Леджер append-only: COMPLETED-запись никогда не изменяется,
// ошибочная запись компенсируется новой, а не правится на месте.
type Transaction struct {
	ID          int64     `db:"id"`           // ID транзакции
	UserID      int64     `db:"user_id"`      // Владелец
	Amount      int64     `db:"amount"`       // Сумма (всегда положительная)
	Direction   Direction `db:"direction"`    // INCOME / EXPENSE
	Category    Category  `db:"category"`     // REAL / BONUS (хранимое значение)
	Status      Status    `db:"status"`       // PENDING / COMPLETED / FAILED
	Source      Source    `db:"source"`       // Откуда пришла транзакция
	ServiceType string    `db:"service_type"` // Тип задачи: video, lipsync, topup, ...
	ExternalID  string    `db:"external_id"`  // Внешний ID: инвойс платёжки, job id провайдера
	RefundOf    *int64    `db:"refund_of"`    // ID исходного списания (только для возвратов)
	Description string    `db:"description"`  // Описание для истории
	CreatedAt   time.Time `db:"created_at"`   // Время транзакции
}

// EffectiveCategory возвращает категорию транзакции для отчётности.
//
// Правило намеренно асимметричное: любой ДОХОД, происходящий из реального
// платежа, всегда считается REAL, что бы ни лежало в хранимом поле
// category. Так промо-кредиты не могут случайно попасть в выручку, а
// реальный платёж — выпасть из неё. Все отчёты обязаны ходить через этот
// метод, а не читать поле Category напрямую.
func (t *Transaction) EffectiveCategory() Category {
	if t.Direction == DirectionIncome && t.Source == SourcePayment {
		return CategoryReal
	}
	return t.Category
}

// SignedAmount возвращает сумму со знаком: начисления положительные,
// списания отрицательные. Инвариант леджера: баланс пользователя равен
// сумме SignedAmount всех его COMPLETED-транзакций.
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionExpense {
		return -t.Amount
	}
	return t.Amount
}

// TxMeta — атрибуты транзакции, передаваемые при списании/начислении.
type TxMeta struct {
	Source      Source
	Category    Category
	ServiceType string
	ExternalID  string
	Description string
}

// RefundResult — результат выполненного возврата.
type RefundResult struct {
	RefundTxID int64 // ID новой INCOME/BONUS транзакции
	UserID     int64 // Кому вернули
	Amount     int64 // Сколько вернули
	NewBalance int64 // Баланс после возврата
}
