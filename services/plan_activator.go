package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/models"
)

// PlanActivator применяет тариф к пользователю внутри транзакции подтверждения заказа
type PlanActivator struct {
	now func() time.Time
}

func NewPlanActivator() *PlanActivator {
	return &PlanActivator{now: time.Now}
}

// Activate перезаписывает тариф, квоты и срок действия.
// Повторная активация считает срок от текущего момента, остаток не суммируется
func (a *PlanActivator) Activate(ctx context.Context, tx models.Tx, userID string, tier models.PlanTier) (*models.PlanActivation, error) {
	plan, err := models.LookupPlan(tier)
	if err != nil {
		return nil, err
	}

	act := models.PlanActivation{
		UserID:          userID,
		Plan:            plan.Tier,
		ExpiresAt:       plan.ExpiryFrom(a.now()),
		InvitationQuota: plan.InvitationQuota,
		GuestQuota:      plan.GuestQuota,
	}
	if err := tx.ActivatePlan(ctx, act); err != nil {
		return nil, fmt.Errorf("activate plan %s for user %s: %w", tier, userID, err)
	}
	return &act, nil
}
