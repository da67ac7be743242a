package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/internal/testutil"
	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/stretchr/testify/require"
)

var markers = []string{"settlement", "success"}

func TestMatchOrders_ExactAmountAndSuccessMarker(t *testing.T) {
	orders := []models.Order{
		{ID: "a", Amount: 150000},
		{ID: "b", Amount: 99000},
	}
	txs := []models.ExtractedTransaction{
		txn("Rp 99.000", "PENDING", "r1"),
		txn("Rp 150.001", "Settlement", "r2"),
		txn("Rp 150.000", "Settlement", "r3"),
	}

	got := MatchOrders(orders, txs, markers, nil)
	require.Len(t, got, 2)
	require.Equal(t, Matched, got[0].Kind)
	require.Equal(t, "r3", *got[0].PaymentRef())
	require.Equal(t, 2, got[0].TxIndex)
	require.Equal(t, Unmatched, got[1].Kind)
	require.Nil(t, got[1].PaymentRef())
}

func TestMatchOrders_TransactionClaimedOnce(t *testing.T) {
	orders := []models.Order{
		{ID: "first", Amount: 75000},
		{ID: "second", Amount: 75000},
	}
	txs := []models.ExtractedTransaction{txn("75000", "success", "only")}

	got := MatchOrders(orders, txs, markers, nil)
	require.Equal(t, Matched, got[0].Kind)
	require.Equal(t, Unmatched, got[1].Kind)
}

func TestMatchOrders_DuplicateReferenceRowsCountOnce(t *testing.T) {
	orders := []models.Order{{ID: "a", Amount: 10}, {ID: "b", Amount: 10}}
	txs := []models.ExtractedTransaction{txn("10", "success", "dup"), txn("10", "success", "dup")}

	got := MatchOrders(orders, txs, markers, nil)
	require.Equal(t, Matched, got[0].Kind)
	require.Equal(t, Unmatched, got[1].Kind)
}

func TestMatchOrders_NoReferenceKeyedByPosition(t *testing.T) {
	orders := []models.Order{{ID: "a", Amount: 10}, {ID: "b", Amount: 10}}
	txs := []models.ExtractedTransaction{txn("10", "success", ""), txn("10", "success", "")}

	got := MatchOrders(orders, txs, markers, nil)
	require.Equal(t, Matched, got[0].Kind)
	require.Equal(t, Matched, got[1].Kind)
	require.Equal(t, 0, got[0].TxIndex)
	require.Equal(t, 1, got[1].TxIndex)
	require.Nil(t, got[0].PaymentRef())
}

func TestMatchOrders_UsedReferenceSkipped(t *testing.T) {
	orders := []models.Order{{ID: "a", Amount: 10}}
	txs := []models.ExtractedTransaction{txn("10", "success", "old")}

	got := MatchOrders(orders, txs, markers, map[string]bool{"old": true})
	require.Equal(t, Unmatched, got[0].Kind)
}

func TestMatchOrders_UnparsableAmount(t *testing.T) {
	orders := []models.Order{{ID: "a", Amount: 0}}
	txs := []models.ExtractedTransaction{txn("n/a", "success", "x")}

	got := MatchOrders(orders, txs, markers, nil)
	require.Equal(t, Unmatched, got[0].Kind)
}

func seedBuyer(store *testutil.MemStore, plan models.PlanTier, amount int64) (models.User, models.Order) {
	u := store.AddUser(models.User{Name: "Sinta", Phone: "081200001111", RegistrationIP: "10.0.0.2"})
	o := store.AddOrder(models.Order{UserID: u.ID, Plan: plan, Amount: amount, OriginIP: "10.0.0.2"})
	return u, o
}

func TestEngineRun_ApprovesActivatesAndNotifies(t *testing.T) {
	store := testutil.NewMemStore()
	engine, notifier, events := newTestEngine(store)
	fixed := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }
	engine.activator.now = func() time.Time { return fixed }

	u, o := seedBuyer(store, models.PlanVIP, 150000)

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{txn("Rp 150.000", "Settlement", "QR-1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Transactions)
	require.Equal(t, 1, report.PendingOrders)
	require.Equal(t, 1, report.Matched)
	require.Equal(t, []string{o.ID}, report.Approved)
	require.Empty(t, report.Failed)
	require.NotEmpty(t, report.RunID)

	got := store.Order(o.ID)
	require.Equal(t, models.OrderApproved, got.Status)
	require.Equal(t, "QR-1", *got.ExternalPaymentID)
	require.Equal(t, fixed, *got.DecidedAt)

	user := store.User(u.ID)
	require.Equal(t, models.PlanVIP, user.Plan)
	require.Equal(t, 3, user.InvitationQuota)
	require.Equal(t, 1000, user.GuestQuota)
	require.Equal(t, fixed.AddDate(0, 12, 0), *user.PlanExpiresAt)

	require.Len(t, notifier.to(u.Phone), 1)
	require.Contains(t, notifier.to(u.Phone)[0].Message, "Rp 150.000")
	require.Len(t, notifier.adminMessages(), 1)
	require.Equal(t, []publishedEvent{{Topic: TopicOrderApproved, Key: o.ID}}, events.events)
}

func TestEngineRun_SecondRunIsNoop(t *testing.T) {
	store := testutil.NewMemStore()
	engine, _, _ := newTestEngine(store)
	_, o := seedBuyer(store, models.PlanRegular, 99000)
	txs := []models.ExtractedTransaction{txn("99000", "success", "R-9")}

	first, err := engine.Run(context.Background(), txs)
	require.NoError(t, err)
	require.Equal(t, []string{o.ID}, first.Approved)

	// новый заказ на ту же сумму не должен забрать уже использованную ссылку
	_, o2 := seedBuyer(store, models.PlanRegular, 99000)
	second, err := engine.Run(context.Background(), txs)
	require.NoError(t, err)
	require.Equal(t, 1, second.PendingOrders)
	require.Equal(t, 0, second.Matched)
	require.Empty(t, second.Approved)
	require.Equal(t, models.OrderPending, store.Order(o2.ID).Status)
}

func TestEngineRun_OldestOrderWinsSharedAmount(t *testing.T) {
	store := testutil.NewMemStore()
	engine, _, _ := newTestEngine(store)
	_, older := seedBuyer(store, models.PlanRegular, 99000)
	_, newer := seedBuyer(store, models.PlanRegular, 99000)

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{txn("99.000", "settlement", "A")})
	require.NoError(t, err)
	require.Equal(t, []string{older.ID}, report.Approved)
	require.Equal(t, models.OrderPending, store.Order(newer.ID).Status)
}

func TestEngineRun_FailedOrderRollsBackAndRunContinues(t *testing.T) {
	store := testutil.NewMemStore()
	engine, notifier, _ := newTestEngine(store)

	referrer := store.AddUser(models.User{Name: "Budi", Phone: "081299990000", RegistrationIP: "1.1.1.1"})
	buyer := store.AddUser(models.User{Name: "Rina", Phone: "081233334444"})
	failing := store.AddOrder(models.Order{UserID: buyer.ID, Plan: models.PlanVIP, Amount: 150000, ReferrerID: &referrer.ID, OriginIP: "2.2.2.2"})
	_, ok := seedBuyer(store, models.PlanRegular, 99000)

	store.FailOn["AddReferralBalance"] = errors.New("balance write failed")

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{
		txn("150000", "success", "F"),
		txn("99000", "success", "G"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Matched)
	require.Equal(t, []string{ok.ID}, report.Approved)
	require.Len(t, report.Failed, 1)
	require.Equal(t, failing.ID, report.Failed[0].OrderID)
	require.Contains(t, report.Failed[0].Error, "balance write failed")

	// откат: ни статуса, ни тарифа, ни записи в журнале
	require.Equal(t, models.OrderPending, store.Order(failing.ID).Status)
	require.Nil(t, store.Order(failing.ID).ExternalPaymentID)
	require.Equal(t, models.PlanFree, store.User(buyer.ID).Plan)
	require.Empty(t, store.Ledger())
	require.Empty(t, notifier.to(buyer.Phone))
}

func TestEngineRun_UnknownTierAbortsOnlyThatOrder(t *testing.T) {
	store := testutil.NewMemStore()
	engine, notifier, _ := newTestEngine(store)

	buyer := store.AddUser(models.User{Name: "Dewi", Phone: "081277778888"})
	gold := store.AddOrder(models.Order{UserID: buyer.ID, Plan: "gold", Amount: 200000})
	_, ok := seedBuyer(store, models.PlanRegular, 99000)

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{
		txn("Rp 200.000", "Settlement", "GOLD-1"),
		txn("Rp 99.000", "Settlement", "REG-1"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Matched)
	require.Equal(t, []string{ok.ID}, report.Approved)
	require.Len(t, report.Failed, 1)
	require.Equal(t, gold.ID, report.Failed[0].OrderID)
	require.Contains(t, report.Failed[0].Error, models.ErrUnknownTier.Error())
	require.Contains(t, report.Failed[0].Error, `"gold"`)

	require.Equal(t, models.OrderPending, store.Order(gold.ID).Status)
	require.Nil(t, store.Order(gold.ID).ExternalPaymentID)
	require.Equal(t, models.PlanFree, store.User(buyer.ID).Plan)
	require.Empty(t, notifier.to(buyer.Phone))
	require.Equal(t, models.OrderApproved, store.Order(ok.ID).Status)

	// ссылка не израсходована: после исправления тарифа заказ подтвердится
	used, err := store.ReferenceUsed(context.Background(), "GOLD-1")
	require.NoError(t, err)
	require.False(t, used)
}

func TestEngineRun_ReferralBonusCredited(t *testing.T) {
	store := testutil.NewMemStore()
	engine, notifier, events := newTestEngine(store)

	referrer := store.AddUser(models.User{Name: "Budi", Phone: "081299990000", RegistrationIP: "1.1.1.1"})
	buyer := store.AddUser(models.User{Name: "Sinta", Phone: "081200001111", RegistrationIP: "2.2.2.2"})
	o := store.AddOrder(models.Order{UserID: buyer.ID, Plan: models.PlanVIP, Amount: 150000, ReferrerID: &referrer.ID, OriginIP: "2.2.2.2"})

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{txn("150000", "success", "X")})
	require.NoError(t, err)
	require.Equal(t, []string{o.ID}, report.Approved)
	require.Empty(t, report.Warnings)

	require.Equal(t, int64(25000), store.User(referrer.ID).ReferralBalance)
	ledger := store.Ledger()
	require.Len(t, ledger, 1)
	require.Equal(t, models.ReferralBonus, ledger[0].Type)
	require.Equal(t, o.ID, *ledger[0].OrderID)
	require.Equal(t, buyer.ID, *ledger[0].RefereeID)

	bal, err := store.LedgerBalance(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, store.User(referrer.ID).ReferralBalance, bal)

	require.Len(t, notifier.to(referrer.Phone), 1)
	require.Len(t, events.events, 2)
	require.Equal(t, TopicReferralCredited, events.events[1].Topic)
}

func TestEngineRun_SelfReferralByIPSkipsBonusWithWarning(t *testing.T) {
	store := testutil.NewMemStore()
	engine, _, _ := newTestEngine(store)

	referrer := store.AddUser(models.User{Name: "Budi", RegistrationIP: "10.1.1.1"})
	buyer := store.AddUser(models.User{Name: "Budi 2", Phone: "0812"})
	o := store.AddOrder(models.Order{UserID: buyer.ID, Plan: models.PlanVVIP, Amount: 500000, ReferrerID: &referrer.ID, OriginIP: "10.1.1.1"})

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{txn("500000", "success", "S")})
	require.NoError(t, err)
	require.Equal(t, []string{o.ID}, report.Approved)
	require.Len(t, report.Warnings, 1)
	require.Contains(t, report.Warnings[0], o.ID)

	require.Equal(t, models.PlanVVIP, store.User(buyer.ID).Plan)
	require.Nil(t, store.User(buyer.ID).PlanExpiresAt)
	require.Zero(t, store.User(referrer.ID).ReferralBalance)
	require.Empty(t, store.Ledger())
}

func TestEngineRun_PendingOrdersError(t *testing.T) {
	engine, _, _ := newTestEngine(testutil.NewMemStore())
	engine.store = failingPendingStore{MemStore: testutil.NewMemStore()}

	_, err := engine.Run(context.Background(), nil)
	require.Error(t, err)
}

type failingPendingStore struct {
	*testutil.MemStore
}

func (failingPendingStore) PendingOrders(ctx context.Context) ([]models.Order, error) {
	return nil, errors.New("connection refused")
}

func TestEngine_ManualApproveAndReject(t *testing.T) {
	store := testutil.NewMemStore()
	engine, notifier, _ := newTestEngine(store)
	u, o := seedBuyer(store, models.PlanRegular, 99000)
	_, other := seedBuyer(store, models.PlanVIP, 150000)

	approval, err := engine.ApproveOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, SourceAdmin, approval.Source)
	require.Equal(t, models.OrderApproved, store.Order(o.ID).Status)
	require.Nil(t, store.Order(o.ID).ExternalPaymentID)
	require.Equal(t, models.PlanRegular, store.User(u.ID).Plan)

	_, err = engine.ApproveOrder(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrOrderNotPending)
	_, err = engine.RejectOrder(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrOrderNotPending)

	rejected, err := engine.RejectOrder(context.Background(), other.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderRejected, rejected.Status)
	require.Equal(t, models.OrderRejected, store.Order(other.ID).Status)

	_, err = engine.ApproveOrder(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrOrderNotFound)

	require.NotEmpty(t, notifier.to(u.Phone))
}

func TestEngineRun_ApprovedOrderNeverReverts(t *testing.T) {
	store := testutil.NewMemStore()
	engine, _, _ := newTestEngine(store)
	_, o := seedBuyer(store, models.PlanRegular, 99000)

	_, err := engine.RejectOrder(context.Background(), o.ID)
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), []models.ExtractedTransaction{txn("99000", "success", "late")})
	require.NoError(t, err)
	require.Zero(t, report.PendingOrders)
	require.Equal(t, models.OrderRejected, store.Order(o.ID).Status)
}
