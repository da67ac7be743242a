package models

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderApproved OrderStatus = "approved"
	OrderRejected OrderStatus = "rejected"
)

var ErrOrderNotFound = errors.New("order not found")

// Order – заказ тарифа. Статус меняется не более одного раза: pending → approved|rejected
type Order struct {
	ID                string      `json:"id" db:"id"`
	UserID            string      `json:"user_id" db:"user_id"`
	Plan              PlanTier    `json:"plan" db:"plan"`
	Amount            int64       `json:"amount" db:"amount"` // в минимальных единицах валюты
	Status            OrderStatus `json:"status" db:"status"`
	ProofURL          *string     `json:"proof_url,omitempty" db:"proof_url"`
	ReferrerID        *string     `json:"referrer_id,omitempty" db:"referrer_id"`
	ReferralDiscount  int64       `json:"referral_discount" db:"referral_discount"`
	OriginIP          string      `json:"origin_ip" db:"origin_ip"`
	ExternalPaymentID *string     `json:"external_payment_id,omitempty" db:"external_payment_id"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	DecidedAt         *time.Time  `json:"decided_at,omitempty" db:"decided_at"`
}

func (o Order) IsPending() bool {
	return o.Status == OrderPending
}

func (o Order) HasReferrer() bool {
	return o.ReferrerID != nil && *o.ReferrerID != ""
}
