// Package topup — платное пополнение баланса: рублёвые счета через
// платёжного провайдера и оплата в Telegram Stars. Начисление проходит
// через billing с source=payment, поэтому категория всегда REAL.
package topup

import (
	"fmt"

	"stargen.ru/generation-bot/internal/common"
)

// Currency — валюта пакета пополнения.
type Currency string

const (
	CurrencyRubles Currency = "rub"
	CurrencyStars  Currency = "star" // Telegram Stars (XTR)
)

// Invoice — выставленный счёт до оплаты.
// Payload уезжает в Telegram и возвращается в платёжных колбэках,
// по нему начисление привязывается к счёту.
type Invoice struct {
	Payload string   // Внешний ключ идемпотентности начисления
	UserID  int64    // Покупатель
	Curr    Currency // Валюта пакета
	Amount  int64    // Сумма в валюте пакета (рубли или звёзды)
	Stars   int64    // Сколько звёзд будет начислено
}

// Title — заголовок счёта для Telegram.
func (i *Invoice) Title() string {
	return fmt.Sprintf("Пополнение: %d %s", i.Stars, common.PluralizeStars(i.Stars))
}

// PriceLabel — подпись строки цены в счёте.
func (i *Invoice) PriceLabel() string {
	if i.Curr == CurrencyRubles {
		return fmt.Sprintf("%d %s", i.Amount, common.PluralizeRubles(i.Amount))
	}
	return i.Title()
}
