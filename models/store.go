package models

import (
	"context"
	"time"
)

// Store – доступ к заказам, пользователям и реферальному журналу.
// Реализации: database.PgStore (PostgreSQL) и testutil.MemStore (тесты)
type Store interface {
	OutboxStore

	PendingOrders(ctx context.Context) ([]Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// ReferenceUsed – ссылка транзакции уже подтвердила какой-то заказ
	ReferenceUsed(ctx context.Context, ref string) (bool, error)
	LedgerBalance(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context) (*Stats, error)

	// InTx выполняет fn в одной транзакции: nil – commit, ошибка – rollback
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx – операции, которые должны выполняться атомарно
type Tx interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// ApproveOrder и RejectOrder меняют только pending-заказ; false – заказ уже решён
	ApproveOrder(ctx context.Context, orderID string, paymentRef *string, at time.Time) (bool, error)
	RejectOrder(ctx context.Context, orderID string, at time.Time) (bool, error)
	ActivatePlan(ctx context.Context, a PlanActivation) error
	// AddReferralBalance меняет кэш баланса и возвращает новое значение
	AddReferralBalance(ctx context.Context, userID string, delta int64) (int64, error)
	AppendReferralTx(ctx context.Context, t *ReferralTransaction) error
	SetPayoutRequest(ctx context.Context, userID string, pending bool, account *string) error
}

// OutboxStore – очередь уведомлений для локального бота
type OutboxStore interface {
	EnqueueNotification(ctx context.Context, phone, message string) (*Notification, error)
	PendingNotifications(ctx context.Context, limit int) ([]Notification, error)
	// ConfirmNotification переводит pending в sent/failed; false – уже не pending
	ConfirmNotification(ctx context.Context, id string, status NotificationStatus, errText string) (bool, error)
}

// Stats – сводка для внутреннего эндпоинта /stats
type Stats struct {
	OrdersByStatus       map[OrderStatus]int64 `json:"orders_by_status"`
	UsersByPlan          map[PlanTier]int64    `json:"users_by_plan"`
	PendingNotifications int64                 `json:"pending_notifications"`
	ReferralBalanceTotal int64                 `json:"referral_balance_total"`
	ReferralLedgerNet    int64                 `json:"referral_ledger_net"`
	PendingPayouts       int64                 `json:"pending_payouts"`
	GeneratedAt          time.Time             `json:"generated_at"`
}

// LedgerConsistent – кэш балансов совпадает с журналом
func (s Stats) LedgerConsistent() bool {
	return s.ReferralBalanceTotal == s.ReferralLedgerNet
}
