package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/monitoring"

	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient referral balance")
	ErrNoPayoutRequested   = errors.New("no payout requested")
	ErrPayoutAlreadyQueued = errors.New("payout already requested")
	ErrEmptyPayoutAccount  = errors.New("payout account is required")
)

// BonusResult – итог начисления бонуса по одному заказу
type BonusResult struct {
	Credited   bool   `json:"credited"`
	ReferrerID string `json:"referrer_id,omitempty"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
	Warning    string `json:"warning,omitempty"`
}

type ReferralProcessor struct {
	store     models.Store
	notifier  Notifier
	minPayout int64
	log       *zap.Logger
}

func NewReferralProcessor(store models.Store, notifier Notifier, minPayout int64) *ReferralProcessor {
	return &ReferralProcessor{
		store:     store,
		notifier:  notifier,
		minPayout: minPayout,
		log:       logging.Named("referral"),
	}
}

// Credit начисляет бонус пригласившему в транзакции подтверждения заказа.
// Самоприглашение (тот же пользователь или IP заказа совпадает с IP регистрации
// пригласившего) не начисляется и возвращается как Warning. Ошибка записи
// откатывает всю транзакцию вместе с подтверждением
func (p *ReferralProcessor) Credit(ctx context.Context, tx models.Tx, order models.Order) (BonusResult, error) {
	if !order.HasReferrer() {
		return BonusResult{}, nil
	}
	referrerID := *order.ReferrerID
	res := BonusResult{ReferrerID: referrerID}

	plan, err := models.LookupPlan(order.Plan)
	if err != nil {
		return res, err
	}
	if plan.ReferralBonus <= 0 {
		monitoring.ReferralCreditsTotal.WithLabelValues("no_bonus").Inc()
		return res, nil
	}

	if referrerID == order.UserID {
		res.Warning = fmt.Sprintf("order %s: self-referral by user %s, bonus skipped", order.ID, referrerID)
		monitoring.ReferralCreditsTotal.WithLabelValues("self_referral").Inc()
		return res, nil
	}

	referrer, err := tx.GetUser(ctx, referrerID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			res.Warning = fmt.Sprintf("order %s: referrer %s not found, bonus skipped", order.ID, referrerID)
			monitoring.ReferralCreditsTotal.WithLabelValues("missing_referrer").Inc()
			return res, nil
		}
		return res, err
	}

	if sameIP(order.OriginIP, referrer.RegistrationIP) {
		res.Warning = fmt.Sprintf("order %s: origin IP matches referrer %s registration IP, bonus skipped", order.ID, referrerID)
		monitoring.ReferralCreditsTotal.WithLabelValues("self_referral").Inc()
		return res, nil
	}

	refereeID := order.UserID
	orderID := order.ID
	entry := &models.ReferralTransaction{
		ReferrerID: referrerID,
		RefereeID:  &refereeID,
		OrderID:    &orderID,
		Amount:     plan.ReferralBonus,
		Type:       models.ReferralBonus,
	}
	if err := tx.AppendReferralTx(ctx, entry); err != nil {
		return res, fmt.Errorf("append referral bonus: %w", err)
	}
	balance, err := tx.AddReferralBalance(ctx, referrerID, plan.ReferralBonus)
	if err != nil {
		return res, fmt.Errorf("update referral balance: %w", err)
	}

	res.Credited = true
	res.Amount = plan.ReferralBonus
	res.NewBalance = balance
	monitoring.ReferralCreditsTotal.WithLabelValues("credited").Inc()
	return res, nil
}

func sameIP(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && a == b
}

// RequestPayout – пользователь просит вывести весь баланс на указанный счёт
func (p *ReferralProcessor) RequestPayout(ctx context.Context, userID, account string) (*models.User, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyPayoutAccount
	}

	var user *models.User
	err := p.store.InTx(ctx, func(tx models.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.PayoutPending {
			return ErrPayoutAlreadyQueued
		}
		if u.ReferralBalance <= 0 || u.ReferralBalance < p.minPayout {
			return fmt.Errorf("%w: balance %d, minimum %d", ErrInsufficientBalance, u.ReferralBalance, p.minPayout)
		}
		if err := tx.SetPayoutRequest(ctx, userID, true, &account); err != nil {
			return err
		}
		u.PayoutPending = true
		u.PayoutAccount = &account
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("💸 Запрошен вывод реферального баланса",
		zap.String("user_id", userID), zap.Int64("balance", user.ReferralBalance))
	if p.notifier != nil {
		p.notifier.NotifyAdmin(ctx, fmt.Sprintf("Permintaan pencairan komisi: %s (%s), saldo %s ke %s",
			user.Name, user.Phone, FormatRupiah(user.ReferralBalance), account))
	}
	return user, nil
}

// ApprovePayout списывает весь баланс одной withdrawal-записью и снимает флаг запроса
func (p *ReferralProcessor) ApprovePayout(ctx context.Context, userID string) (*models.ReferralTransaction, error) {
	var (
		entry *models.ReferralTransaction
		user  *models.User
	)
	err := p.store.InTx(ctx, func(tx models.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !u.PayoutPending {
			return ErrNoPayoutRequested
		}
		if u.ReferralBalance <= 0 {
			return fmt.Errorf("%w: balance %d", ErrInsufficientBalance, u.ReferralBalance)
		}

		entry = &models.ReferralTransaction{
			ReferrerID: userID,
			Amount:     u.ReferralBalance,
			Type:       models.ReferralWithdrawal,
		}
		if err := tx.AppendReferralTx(ctx, entry); err != nil {
			return fmt.Errorf("append withdrawal: %w", err)
		}
		balance, err := tx.AddReferralBalance(ctx, userID, -u.ReferralBalance)
		if err != nil {
			return fmt.Errorf("update referral balance: %w", err)
		}
		if err := tx.SetPayoutRequest(ctx, userID, false, nil); err != nil {
			return err
		}
		u.ReferralBalance = balance
		u.PayoutPending = false
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.ReferralCreditsTotal.WithLabelValues("withdrawn").Inc()
	p.log.Info("✅ Вывод реферального баланса подтверждён",
		zap.String("user_id", userID), zap.Int64("amount", entry.Amount))
	if p.notifier != nil {
		p.notifier.Notify(ctx, user.Phone,
			fmt.Sprintf("Pencairan komisi referral sebesar %s telah diproses.", FormatRupiah(entry.Amount)), user.Plan)
	}
	return entry, nil
}
