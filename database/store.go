package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier – общее у *pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore реализует models.Store поверх pgxpool
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const orderColumns = `id::text, user_id::text, plan, amount, status, proof_url, referrer_id::text,
    referral_discount, origin_ip, external_payment_id, created_at, decided_at`

const userColumns = `id::text, name, phone, plan, plan_expires_at, invitation_quota, guest_quota,
    COALESCE(referral_code, ''), referral_balance, registration_ip, payout_pending, payout_account,
    created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Plan, &o.Amount, &o.Status, &o.ProofURL, &o.ReferrerID,
		&o.ReferralDiscount, &o.OriginIP, &o.ExternalPaymentID, &o.CreatedAt, &o.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Plan, &u.PlanExpiresAt, &u.InvitationQuota, &u.GuestQuota,
		&u.ReferralCode, &u.ReferralBalance, &u.RegistrationIP, &u.PayoutPending, &u.PayoutAccount,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// validID – id не UUID не может существовать; запрос с ним уронил бы транзакцию
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (*models.Order, error) {
	if !validID(id) {
		return nil, models.ErrOrderNotFound
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	return o, err
}

func getUser(ctx context.Context, q querier, id string, forUpdate bool) (*models.User, error) {
	if !validID(id) {
		return nil, models.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanUser(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	return u, err
}

// PendingOrders возвращает pending-заказы, старые первыми
func (s *PgStore) PendingOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+`
        FROM orders WHERE status = 'pending' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PgStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getOrder(ctx, s.pool, id, false)
}

func (s *PgStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, s.pool, id, false)
}

func (s *PgStore) ReferenceUsed(ctx context.Context, ref string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE external_payment_id = $1)`, ref).Scan(&used)
	return used, err
}

// LedgerBalance считает баланс по журналу, не по кэшу
func (s *PgStore) LedgerBalance(ctx context.Context, userID string) (int64, error) {
	if !validID(userID) {
		return 0, models.ErrUserNotFound
	}
	var balance int64
	err := s.pool.QueryRow(ctx, `
        SELECT COALESCE(SUM(CASE WHEN type = 'withdrawal' THEN -amount ELSE amount END), 0)
        FROM referral_transactions WHERE referrer_id = $1`, userID).Scan(&balance)
	return balance, err
}

func (s *PgStore) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{
		OrdersByStatus: map[models.OrderStatus]int64{},
		UsersByPlan:    map[models.PlanTier]int64{},
		GeneratedAt:    time.Now(),
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("orders by status: %w", err)
	}
	for rows.Next() {
		var status models.OrderStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.OrdersByStatus[status] = n
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT plan, COUNT(*) FROM users GROUP BY plan`)
	if err != nil {
		return nil, fmt.Errorf("users by plan: %w", err)
	}
	for rows.Next() {
		var plan models.PlanTier
		var n int64
		if err := rows.Scan(&plan, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.UsersByPlan[plan] = n
	}
	rows.Close()

	err = s.pool.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM notifications WHERE status = 'pending'),
            (SELECT COALESCE(SUM(referral_balance), 0) FROM users),
            (SELECT COALESCE(SUM(CASE WHEN type = 'withdrawal' THEN -amount ELSE amount END), 0) FROM referral_transactions),
            (SELECT COUNT(*) FROM users WHERE payout_pending)
    `).Scan(&stats.PendingNotifications, &stats.ReferralBalanceTotal, &stats.ReferralLedgerNet, &stats.PendingPayouts)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}
	return stats, nil
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx models.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// ========== OUTBOX ==========

func (s *PgStore) EnqueueNotification(ctx context.Context, phone, message string) (*models.Notification, error) {
	var n models.Notification
	err := s.pool.QueryRow(ctx, `
        INSERT INTO notifications (phone, message, status, created_at, updated_at)
        VALUES ($1, $2, 'pending', NOW(), NOW())
        RETURNING id::text, phone, message, status, error, created_at, updated_at`,
		phone, message).Scan(&n.ID, &n.Phone, &n.Message, &n.Status, &n.Error, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *PgStore) PendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id::text, phone, message, status, error, created_at, updated_at
        FROM notifications WHERE status = 'pending'
        ORDER BY created_at ASC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Phone, &n.Message, &n.Status, &n.Error, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (s *PgStore) ConfirmNotification(ctx context.Context, id string, status models.NotificationStatus, errText string) (bool, error) {
	if !validID(id) {
		return false, models.ErrNotificationNotFound
	}
	var errVal *string
	if errText != "" {
		errVal = &errText
	}
	tag, err := s.pool.Exec(ctx, `
        UPDATE notifications SET status = $1, error = $2, updated_at = NOW()
        WHERE id = $3 AND status = 'pending'`, string(status), errVal, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, models.ErrNotificationNotFound
		}
		return false, nil
	}
	return true, nil
}

// ========== ТРАНЗАКЦИЯ ==========

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, t.tx, id, true)
}

func (t *pgTx) ApproveOrder(ctx context.Context, orderID string, paymentRef *string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE orders SET status = 'approved', external_payment_id = COALESCE($2, external_payment_id), decided_at = $3
        WHERE id = $1 AND status = 'pending'`, orderID, paymentRef, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) RejectOrder(ctx context.Context, orderID string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE orders SET status = 'rejected', decided_at = $2
        WHERE id = $1 AND status = 'pending'`, orderID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ActivatePlan(ctx context.Context, a models.PlanActivation) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE users SET plan = $2, plan_expires_at = $3, invitation_quota = $4, guest_quota = $5, updated_at = NOW()
        WHERE id = $1`, a.UserID, string(a.Plan), a.ExpiresAt, a.InvitationQuota, a.GuestQuota)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (t *pgTx) AddReferralBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
        UPDATE users SET referral_balance = referral_balance + $2, updated_at = NOW()
        WHERE id = $1
        RETURNING referral_balance`, userID, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrUserNotFound
	}
	return balance, err
}

func (t *pgTx) AppendReferralTx(ctx context.Context, rt *models.ReferralTransaction) error {
	return t.tx.QueryRow(ctx, `
        INSERT INTO referral_transactions (referrer_id, referee_id, order_id, amount, type, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id::text, created_at`,
		rt.ReferrerID, rt.RefereeID, rt.OrderID, rt.Amount, string(rt.Type)).Scan(&rt.ID, &rt.CreatedAt)
}

func (t *pgTx) SetPayoutRequest(ctx context.Context, userID string, pending bool, account *string) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE users SET payout_pending = $2, payout_account = COALESCE($3, payout_account), updated_at = NOW()
        WHERE id = $1`, userID, pending, account)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
