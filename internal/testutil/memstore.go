// Package testutil содержит in-memory реализацию models.Store для тестов.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/google/uuid"
)

type memState struct {
	users         map[string]models.User
	orders        map[string]models.Order
	ledger        []models.ReferralTransaction
	notifications map[string]models.Notification
	seq           int64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:         make(map[string]models.User, len(s.users)),
		orders:        make(map[string]models.Order, len(s.orders)),
		ledger:        append([]models.ReferralTransaction(nil), s.ledger...),
		notifications: make(map[string]models.Notification, len(s.notifications)),
		seq:           s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	return c
}

// MemStore ведёт себя как PgStore: InTx применяет изменения только при nil-ошибке.
// Транзакции сериализуются одним мьютексом
type MemStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state *memState

	// FailOn позволяет тесту уронить операцию транзакции по имени ("ApproveOrder", ...)
	FailOn map[string]error
}

func NewMemStore() *MemStore {
	return &MemStore{
		state: &memState{
			users:         map[string]models.User{},
			orders:        map[string]models.Order{},
			notifications: map[string]models.Notification{},
		},
		FailOn: map[string]error{},
	}
}

// ========== SEED ==========

func (m *MemStore) AddUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Plan == "" {
		u.Plan = models.PlanFree
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
		u.UpdatedAt = u.CreatedAt
	}
	m.state.users[u.ID] = u
	return u
}

// AddOrder сохраняет заказ; CreatedAt по умолчанию растёт с каждым вызовом, чтобы порядок был стабильным
func (m *MemStore) AddOrder(o models.Order) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.OrderPending
	}
	m.state.seq++
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.state.seq) * time.Minute)
	}
	m.state.orders[o.ID] = o
	return o
}

// ========== INSPECT ==========

func (m *MemStore) Order(id string) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.orders[id]
}

func (m *MemStore) User(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.users[id]
}

func (m *MemStore) Ledger() []models.ReferralTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReferralTransaction(nil), m.state.ledger...)
}

func (m *MemStore) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Notification, 0, len(m.state.notifications))
	for _, n := range m.state.notifications {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

// ========== models.Store ==========

func (m *MemStore) PendingOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Order
	for _, o := range m.state.orders {
		if o.Status == models.OrderPending {
			list = append(list, o)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (m *MemStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getOrder(id)
}

func (m *MemStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getUser(id)
}

func (m *MemStore) ReferenceUsed(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.state.orders {
		if o.ExternalPaymentID != nil && *o.ExternalPaymentID == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) LedgerBalance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, t := range m.state.ledger {
		if t.ReferrerID == userID {
			sum += t.Signed()
		}
	}
	return sum, nil
}

func (m *MemStore) Stats(ctx context.Context) (*models.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &models.Stats{
		OrdersByStatus: map[models.OrderStatus]int64{},
		UsersByPlan:    map[models.PlanTier]int64{},
		GeneratedAt:    time.Now(),
	}
	for _, o := range m.state.orders {
		st.OrdersByStatus[o.Status]++
	}
	for _, u := range m.state.users {
		st.UsersByPlan[u.Plan]++
		st.ReferralBalanceTotal += u.ReferralBalance
		if u.PayoutPending {
			st.PendingPayouts++
		}
	}
	for _, t := range m.state.ledger {
		st.ReferralLedgerNet += t.Signed()
	}
	for _, n := range m.state.notifications {
		if n.Status == models.NotificationPending {
			st.PendingNotifications++
		}
	}
	return st, nil
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx models.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	work := m.state.clone()
	m.mu.Unlock()

	if err := fn(&memTx{state: work, failOn: m.FailOn}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *MemStore) EnqueueNotification(ctx context.Context, phone, message string) (*models.Notification, error) {
	if err := m.FailOn["EnqueueNotification"]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.seq++
	now := time.Now().Add(time.Duration(m.state.seq) * time.Microsecond)
	n := models.Notification{
		ID:        uuid.NewString(),
		Phone:     phone,
		Message:   message,
		Status:    models.NotificationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.state.notifications[n.ID] = n
	return &n, nil
}

func (m *MemStore) PendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	var list []models.Notification
	for _, n := range m.Notifications() {
		if n.Status == models.NotificationPending {
			list = append(list, n)
		}
		if len(list) == limit {
			break
		}
	}
	return list, nil
}

func (m *MemStore) ConfirmNotification(ctx context.Context, id string, status models.NotificationStatus, errText string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.state.notifications[id]
	if !ok {
		return false, models.ErrNotificationNotFound
	}
	if n.Status != models.NotificationPending {
		return false, nil
	}
	n.Status = status
	if errText != "" {
		n.Error = &errText
	}
	n.UpdatedAt = time.Now()
	m.state.notifications[id] = n
	return true, nil
}

// ========== TX ==========

func (s *memState) getOrder(id string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return &o, nil
}

func (s *memState) getUser(id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

type memTx struct {
	state  *memState
	failOn map[string]error
}

func (t *memTx) fail(op string) error {
	return t.failOn[op]
}

func (t *memTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return t.state.getOrder(id)
}

func (t *memTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	return t.state.getUser(id)
}

func (t *memTx) decide(orderID string, status models.OrderStatus, at time.Time) (*models.Order, bool, error) {
	o, ok := t.state.orders[orderID]
	if !ok || o.Status != models.OrderPending {
		return nil, false, nil
	}
	o.Status = status
	o.DecidedAt = &at
	return &o, true, nil
}

func (t *memTx) ApproveOrder(ctx context.Context, orderID string, paymentRef *string, at time.Time) (bool, error) {
	if err := t.fail("ApproveOrder"); err != nil {
		return false, err
	}
	o, ok, _ := t.decide(orderID, models.OrderApproved, at)
	if !ok {
		return false, nil
	}
	if paymentRef != nil {
		for _, other := range t.state.orders {
			if other.ExternalPaymentID != nil && *other.ExternalPaymentID == *paymentRef {
				return false, fmt.Errorf("duplicate key value violates unique constraint: external_payment_id %q", *paymentRef)
			}
		}
		o.ExternalPaymentID = paymentRef
	}
	t.state.orders[orderID] = *o
	return true, nil
}

func (t *memTx) RejectOrder(ctx context.Context, orderID string, at time.Time) (bool, error) {
	if err := t.fail("RejectOrder"); err != nil {
		return false, err
	}
	o, ok, _ := t.decide(orderID, models.OrderRejected, at)
	if !ok {
		return false, nil
	}
	t.state.orders[orderID] = *o
	return true, nil
}

func (t *memTx) ActivatePlan(ctx context.Context, a models.PlanActivation) error {
	if err := t.fail("ActivatePlan"); err != nil {
		return err
	}
	u, ok := t.state.users[a.UserID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Plan = a.Plan
	u.PlanExpiresAt = a.ExpiresAt
	u.InvitationQuota = a.InvitationQuota
	u.GuestQuota = a.GuestQuota
	u.UpdatedAt = time.Now()
	t.state.users[a.UserID] = u
	return nil
}

func (t *memTx) AddReferralBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	if err := t.fail("AddReferralBalance"); err != nil {
		return 0, err
	}
	u, ok := t.state.users[userID]
	if !ok {
		return 0, models.ErrUserNotFound
	}
	if u.ReferralBalance+delta < 0 {
		return 0, fmt.Errorf("new row for relation \"users\" violates check constraint: referral_balance")
	}
	u.ReferralBalance += delta
	t.state.users[userID] = u
	return u.ReferralBalance, nil
}

func (t *memTx) AppendReferralTx(ctx context.Context, rt *models.ReferralTransaction) error {
	if err := t.fail("AppendReferralTx"); err != nil {
		return err
	}
	rt.ID = uuid.NewString()
	rt.CreatedAt = time.Now()
	t.state.ledger = append(t.state.ledger, *rt)
	return nil
}

func (t *memTx) SetPayoutRequest(ctx context.Context, userID string, pending bool, account *string) error {
	if err := t.fail("SetPayoutRequest"); err != nil {
		return err
	}
	u, ok := t.state.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.PayoutPending = pending
	if account != nil {
		u.PayoutAccount = account
	}
	t.state.users[userID] = u
	return nil
}
