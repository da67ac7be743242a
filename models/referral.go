package models

import (
	"time"
)

type ReferralTxType string

const (
	ReferralBonus      ReferralTxType = "bonus"
	ReferralWithdrawal ReferralTxType = "withdrawal"
)

// ReferralTransaction – неизменяемая запись реферального журнала.
// Кэш users.referral_balance всегда равен сумме bonus минус сумма withdrawal
type ReferralTransaction struct {
	ID         string         `json:"id" db:"id"`
	ReferrerID string         `json:"referrer_id" db:"referrer_id"` // кто получает/выводит
	RefereeID  *string        `json:"referee_id,omitempty" db:"referee_id"`
	OrderID    *string        `json:"order_id,omitempty" db:"order_id"`
	Amount     int64          `json:"amount" db:"amount"` // всегда > 0, знак задаёт Type
	Type       ReferralTxType `json:"type" db:"type"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// Signed – вклад записи в баланс
func (t ReferralTransaction) Signed() int64 {
	if t.Type == ReferralWithdrawal {
		return -t.Amount
	}
	return t.Amount
}
