package models

import (
	"errors"
	"fmt"
	"time"
)

type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanRegular PlanTier = "regular"
	PlanVIP     PlanTier = "vip"
	PlanVVIP    PlanTier = "vvip"
)

var ErrUnknownTier = errors.New("unknown plan tier")

// Plan – статическая конфигурация тарифа
type Plan struct {
	Tier            PlanTier `json:"tier"`
	InvitationQuota int      `json:"invitation_quota"`
	GuestQuota      int      `json:"guest_quota"`
	DurationMonths  int      `json:"duration_months"` // 0 – бессрочно
	ReferralBonus   int64    `json:"referral_bonus"`
}

var plans = map[PlanTier]Plan{
	PlanFree:    {Tier: PlanFree, InvitationQuota: 1, GuestQuota: 50, DurationMonths: 0, ReferralBonus: 0},
	PlanRegular: {Tier: PlanRegular, InvitationQuota: 1, GuestQuota: 300, DurationMonths: 3, ReferralBonus: 10000},
	PlanVIP:     {Tier: PlanVIP, InvitationQuota: 3, GuestQuota: 1000, DurationMonths: 12, ReferralBonus: 25000},
	PlanVVIP:    {Tier: PlanVVIP, InvitationQuota: 10, GuestQuota: 5000, DurationMonths: 0, ReferralBonus: 50000},
}

// LookupPlan возвращает конфигурацию тарифа или ErrUnknownTier
func LookupPlan(tier PlanTier) (Plan, error) {
	p, ok := plans[tier]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return p, nil
}

// AllPlans – тарифы в порядке возрастания
func AllPlans() []Plan {
	return []Plan{plans[PlanFree], plans[PlanRegular], plans[PlanVIP], plans[PlanVVIP]}
}

func (p Plan) Permanent() bool {
	return p.DurationMonths == 0
}

// ExpiryFrom считает дату окончания; nil для бессрочного тарифа
func (p Plan) ExpiryFrom(now time.Time) *time.Time {
	if p.Permanent() {
		return nil
	}
	exp := now.AddDate(0, p.DurationMonths, 0)
	return &exp
}

// IsOfficial – верхний тариф, уведомления через облачный канал
func (t PlanTier) IsOfficial() bool {
	return t == PlanVVIP
}

func (t PlanTier) Valid() bool {
	_, ok := plans[t]
	return ok
}
