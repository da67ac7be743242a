package models

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// User – поля пользователя, нужные биллингу. Остальной профиль живёт в веб-части
type User struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Phone           string     `json:"phone" db:"phone"`
	Plan            PlanTier   `json:"plan" db:"plan"`
	PlanExpiresAt   *time.Time `json:"plan_expires_at" db:"plan_expires_at"` // nil – бессрочно
	InvitationQuota int        `json:"invitation_quota" db:"invitation_quota"`
	GuestQuota      int        `json:"guest_quota" db:"guest_quota"`
	ReferralCode    string     `json:"referral_code" db:"referral_code"`
	ReferralBalance int64      `json:"referral_balance" db:"referral_balance"`
	RegistrationIP  string     `json:"-" db:"registration_ip"`
	PayoutPending   bool       `json:"payout_pending" db:"payout_pending"`
	PayoutAccount   *string    `json:"payout_account,omitempty" db:"payout_account"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// PlanActivation – то, что активатор записывает одним UPDATE
type PlanActivation struct {
	UserID          string
	Plan            PlanTier
	ExpiresAt       *time.Time
	InvitationQuota int
	GuestQuota      int
}
