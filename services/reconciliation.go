package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrOrderNotPending = errors.New("order is not pending")

const (
	SourceReconcile = "reconcile"
	SourceAdmin     = "admin"
)

// Топики доменных событий
const (
	TopicOrderApproved    = "order.approved"
	TopicReferralCredited = "referral.credited"
)

// EventPublisher – шина событий (Kafka). nil отключает публикацию
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

type MatchKind int

const (
	Unmatched MatchKind = iota
	Matched
)

func (k MatchKind) String() string {
	if k == Matched {
		return "matched"
	}
	return "unmatched"
}

// Match – результат сопоставления одного pending-заказа
type Match struct {
	Kind        MatchKind
	Order       models.Order
	Transaction models.ExtractedTransaction
	TxIndex     int
}

// PaymentRef – ссылка транзакции для external_payment_id; nil, если ссылки нет
func (m Match) PaymentRef() *string {
	if m.Kind != Matched || m.Transaction.Reference == "" {
		return nil
	}
	ref := m.Transaction.Reference
	return &ref
}

// txKey идентифицирует транзакцию в рамках прогона
func txKey(t models.ExtractedTransaction, idx int) string {
	if t.Reference != "" {
		return "ref:" + t.Reference
	}
	return "idx:" + strconv.Itoa(idx)
}

// MatchOrders сопоставляет заказы с транзакциями: сумма совпадает точно, статус
// содержит маркер успеха. Заказы обходятся в порядке поступления, каждая
// транзакция подтверждает не больше одного заказа. used – ссылки, уже
// записанные в external_payment_id ранее
func MatchOrders(orders []models.Order, txs []models.ExtractedTransaction, markers []string, used map[string]bool) []Match {
	claimed := make(map[string]bool, len(txs))
	for ref := range used {
		claimed["ref:"+ref] = true
	}

	matches := make([]Match, 0, len(orders))
	for _, order := range orders {
		m := Match{Kind: Unmatched, Order: order, TxIndex: -1}
		for i, t := range txs {
			key := txKey(t, i)
			if claimed[key] {
				continue
			}
			amount, ok := t.ParsedAmount()
			if !ok || amount != order.Amount {
				continue
			}
			if !t.IsSuccess(markers) {
				continue
			}
			claimed[key] = true
			m = Match{Kind: Matched, Order: order, Transaction: t, TxIndex: i}
			break
		}
		matches = append(matches, m)
	}
	return matches
}

// OrderError – сбой одного заказа, прогон продолжается
type OrderError struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

// Report – сводка прогона сверки
type Report struct {
	RunID          string       `json:"run_id"`
	StartedAt      time.Time    `json:"started_at"`
	Duration       string       `json:"duration"`
	Transactions   int          `json:"transactions"`
	PendingOrders  int          `json:"pending_orders"`
	Matched        int          `json:"matched"`
	Approved       []string     `json:"approved"`
	AlreadyDecided []string     `json:"already_decided,omitempty"`
	Failed         []OrderError `json:"failed,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// Approval – то, что произошло в транзакции подтверждения
type Approval struct {
	Order      models.Order
	User       models.User
	Activation models.PlanActivation
	Bonus      BonusResult
	Source     string
}

type Engine struct {
	store     models.Store
	activator *PlanActivator
	referrals *ReferralProcessor
	notifier  Notifier
	events    EventPublisher
	markers   []string
	now       func() time.Time
	log       *zap.Logger
}

func NewEngine(store models.Store, activator *PlanActivator, referrals *ReferralProcessor, notifier Notifier, events EventPublisher, markers []string) *Engine {
	return &Engine{
		store:     store,
		activator: activator,
		referrals: referrals,
		notifier:  notifier,
		events:    events,
		markers:   markers,
		now:       time.Now,
		log:       logging.Named("reconcile"),
	}
}

// Run сверяет pending-заказы с транзакциями. Каждый заказ подтверждается в своей
// транзакции; сбой одного заказа попадает в Report.Failed и не прерывает прогон.
// Ошибка возвращается, только если не удалось прочитать заказы
func (e *Engine) Run(ctx context.Context, txs []models.ExtractedTransaction) (*Report, error) {
	report := &Report{
		RunID:        uuid.NewString(),
		StartedAt:    e.now(),
		Transactions: len(txs),
		Approved:     []string{},
	}
	log := e.log.With(zap.String("run_id", report.RunID))

	orders, err := e.store.PendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending orders: %w", err)
	}
	report.PendingOrders = len(orders)

	used := map[string]bool{}
	for _, t := range txs {
		if t.Reference == "" || used[t.Reference] {
			continue
		}
		ok, err := e.store.ReferenceUsed(ctx, t.Reference)
		if err != nil {
			return nil, fmt.Errorf("check payment reference %q: %w", t.Reference, err)
		}
		if ok {
			used[t.Reference] = true
		}
	}

	for _, m := range MatchOrders(orders, txs, e.markers, used) {
		if m.Kind != Matched {
			continue
		}
		report.Matched++

		approval, err := e.approve(ctx, m.Order.ID, m.PaymentRef(), SourceReconcile)
		switch {
		case errors.Is(err, ErrOrderNotPending):
			report.AlreadyDecided = append(report.AlreadyDecided, m.Order.ID)
		case err != nil:
			monitoring.OrderFailuresTotal.Inc()
			log.Error("❌ Не удалось подтвердить заказ", zap.String("order_id", m.Order.ID), zap.Error(err))
			report.Failed = append(report.Failed, OrderError{OrderID: m.Order.ID, Error: err.Error()})
		default:
			report.Approved = append(report.Approved, m.Order.ID)
			if approval.Bonus.Warning != "" {
				report.Warnings = append(report.Warnings, approval.Bonus.Warning)
			}
		}
	}

	report.Duration = e.now().Sub(report.StartedAt).String()
	log.Info("🔄 Сверка завершена",
		zap.Int("transactions", report.Transactions),
		zap.Int("pending", report.PendingOrders),
		zap.Int("matched", report.Matched),
		zap.Int("approved", len(report.Approved)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

// ApproveOrder – ручное подтверждение администратором
func (e *Engine) ApproveOrder(ctx context.Context, orderID string) (*Approval, error) {
	return e.approve(ctx, orderID, nil, SourceAdmin)
}

// RejectOrder – ручное отклонение, тариф и бонусы не затрагиваются
func (e *Engine) RejectOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := e.store.InTx(ctx, func(tx models.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.IsPending() {
			return ErrOrderNotPending
		}
		at := e.now()
		ok, err := tx.RejectOrder(ctx, orderID, at)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOrderNotPending
		}
		o.Status = models.OrderRejected
		o.DecidedAt = &at
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.OrdersDecidedTotal.WithLabelValues(string(models.OrderRejected), SourceAdmin).Inc()
	e.log.Info("🚫 Заказ отклонён", zap.String("order_id", orderID))

	if e.notifier != nil {
		if user, err := e.store.GetUser(ctx, order.UserID); err == nil {
			e.notifier.Notify(ctx, user.Phone,
				fmt.Sprintf("Pembayaran untuk paket %s (%s) tidak dapat kami verifikasi. Silakan hubungi admin.",
					tierLabel(order.Plan), FormatRupiah(order.Amount)), user.Plan)
		}
	}
	return order, nil
}

// approve – одна транзакция на заказ: смена статуса, тариф, реферальный бонус.
// Уведомления и события уходят только после коммита
func (e *Engine) approve(ctx context.Context, orderID string, paymentRef *string, source string) (*Approval, error) {
	var approval Approval
	err := e.store.InTx(ctx, func(tx models.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.IsPending() {
			return ErrOrderNotPending
		}

		at := e.now()
		ok, err := tx.ApproveOrder(ctx, orderID, paymentRef, at)
		if err != nil {
			return fmt.Errorf("approve order: %w", err)
		}
		if !ok {
			return ErrOrderNotPending
		}
		order.Status = models.OrderApproved
		order.DecidedAt = &at
		order.ExternalPaymentID = paymentRef

		act, err := e.activator.Activate(ctx, tx, order.UserID, order.Plan)
		if err != nil {
			return err
		}

		bonus, err := e.referrals.Credit(ctx, tx, *order)
		if err != nil {
			return fmt.Errorf("referral bonus: %w", err)
		}

		user, err := tx.GetUser(ctx, order.UserID)
		if err != nil {
			return err
		}

		approval = Approval{Order: *order, User: *user, Activation: *act, Bonus: bonus, Source: source}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.OrdersDecidedTotal.WithLabelValues(string(models.OrderApproved), source).Inc()
	e.log.Info("✅ Заказ подтверждён",
		zap.String("order_id", orderID),
		zap.String("user_id", approval.User.ID),
		zap.String("plan", string(approval.Order.Plan)),
		zap.String("source", source))
	if approval.Bonus.Warning != "" {
		e.log.Warn("⚠️ Реферальный бонус не начислен", zap.String("reason", approval.Bonus.Warning))
	}

	e.afterCommit(ctx, &approval)
	return &approval, nil
}

func (e *Engine) afterCommit(ctx context.Context, a *Approval) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, a.User.Phone,
			fmt.Sprintf("Terima kasih! Pembayaran paket %s (%s) sudah kami terima. Paket aktif sampai %s.",
				tierLabel(a.Order.Plan), FormatRupiah(a.Order.Amount), formatExpiry(a.Activation.ExpiresAt)),
			a.Activation.Plan)
		e.notifier.NotifyAdmin(ctx,
			fmt.Sprintf("Pesanan %s disetujui (%s): %s, paket %s, %s",
				a.Order.ID, a.Source, a.User.Name, tierLabel(a.Order.Plan), FormatRupiah(a.Order.Amount)))
	}

	if a.Bonus.Credited && e.notifier != nil {
		if referrer, err := e.store.GetUser(ctx, a.Bonus.ReferrerID); err == nil {
			e.notifier.Notify(ctx, referrer.Phone,
				fmt.Sprintf("Komisi referral %s masuk. Saldo Anda sekarang %s.",
					FormatRupiah(a.Bonus.Amount), FormatRupiah(a.Bonus.NewBalance)),
				referrer.Plan)
		} else {
			e.log.Warn("не удалось загрузить пригласившего для уведомления", zap.String("referrer_id", a.Bonus.ReferrerID), zap.Error(err))
		}
	}

	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, TopicOrderApproved, a.Order.ID, map[string]any{
		"order_id":   a.Order.ID,
		"user_id":    a.User.ID,
		"plan":       a.Order.Plan,
		"amount":     a.Order.Amount,
		"source":     a.Source,
		"expires_at": a.Activation.ExpiresAt,
	}); err != nil {
		e.log.Warn("событие order.approved не опубликовано", zap.Error(err))
	}
	if a.Bonus.Credited {
		if err := e.events.Publish(ctx, TopicReferralCredited, a.Bonus.ReferrerID, a.Bonus); err != nil {
			e.log.Warn("событие referral.credited не опубликовано", zap.Error(err))
		}
	}
}

func tierLabel(t models.PlanTier) string {
	switch t {
	case models.PlanRegular:
		return "Regular"
	case models.PlanVIP:
		return "VIP"
	case models.PlanVVIP:
		return "VVIP"
	default:
		return string(t)
	}
}
