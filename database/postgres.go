package database

import (
	"context"
	"fmt"

	"github.com/Mighty-Nievl/mengundang-sub000/config"
	"github.com/Mighty-Nievl/mengundang-sub000/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var Pool *pgxpool.Pool

func InitDB(ctx context.Context, cfg *config.Config) error {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var err error
	Pool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := Pool.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping database: %w", err)
	}

	logging.Logger.Info("✅ Подключение к PostgreSQL установлено", zap.String("db", cfg.DBName))
	if err := createUsersTable(ctx); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	if err := createOrdersTable(ctx); err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}
	if err := createReferralTransactionsTable(ctx); err != nil {
		return fmt.Errorf("failed to create referral_transactions table: %w", err)
	}
	if err := createNotificationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}
	return nil
}

func CloseDB() {
	if Pool != nil {
		Pool.Close()
		logging.Logger.Info("🛑 Соединение с PostgreSQL закрыто")
	}
}

func createUsersTable(ctx context.Context) error {
	// pgcrypto для gen_random_uuid()
	_, err := Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "pgcrypto";`)
	if err != nil {
		return err
	}

	// Таблица принадлежит веб-части; здесь только поля биллинга
	_, err = Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name VARCHAR(100) NOT NULL DEFAULT '',
            phone VARCHAR(32) NOT NULL DEFAULT '',
            plan VARCHAR(20) NOT NULL DEFAULT 'free',
            plan_expires_at TIMESTAMP,
            invitation_quota INTEGER NOT NULL DEFAULT 1,
            guest_quota INTEGER NOT NULL DEFAULT 50,
            referral_code VARCHAR(32) UNIQUE,
            referral_balance BIGINT NOT NULL DEFAULT 0 CHECK (referral_balance >= 0),
            registration_ip VARCHAR(45) NOT NULL DEFAULT '',
            payout_pending BOOLEAN NOT NULL DEFAULT false,
            payout_account TEXT,
            created_at TIMESTAMP DEFAULT NOW(),
            updated_at TIMESTAMP DEFAULT NOW()
        );
    `)
	if err != nil {
		return err
	}

	logging.Logger.Info("✅ Таблица users готова")
	return nil
}

func createOrdersTable(ctx context.Context) error {
	_, err := Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS orders (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id),
            plan VARCHAR(20) NOT NULL,
            amount BIGINT NOT NULL CHECK (amount >= 0),
            status VARCHAR(20) NOT NULL DEFAULT 'pending',
            proof_url TEXT,
            referrer_id UUID REFERENCES users(id),
            referral_discount BIGINT NOT NULL DEFAULT 0,
            origin_ip VARCHAR(45) NOT NULL DEFAULT '',
            external_payment_id VARCHAR(128) UNIQUE,
            created_at TIMESTAMP NOT NULL DEFAULT NOW(),
            decided_at TIMESTAMP
        );
    `)
	if err != nil {
		return err
	}

	// Сверка читает только pending-заказы
	_, err = Pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_orders_pending ON orders(created_at) WHERE status = 'pending';
        CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
    `)
	if err != nil {
		return err
	}

	logging.Logger.Info("✅ Таблица orders готова")
	return nil
}

func createReferralTransactionsTable(ctx context.Context) error {
	_, err := Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS referral_transactions (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            referrer_id UUID NOT NULL REFERENCES users(id),
            referee_id UUID REFERENCES users(id),
            order_id UUID REFERENCES orders(id),
            amount BIGINT NOT NULL CHECK (amount > 0),
            type VARCHAR(20) NOT NULL CHECK (type IN ('bonus', 'withdrawal')),
            created_at TIMESTAMP NOT NULL DEFAULT NOW()
        );
    `)
	if err != nil {
		return err
	}

	_, err = Pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_referral_tx_referrer ON referral_transactions(referrer_id);
    `)
	if err != nil {
		return err
	}

	logging.Logger.Info("✅ Таблица referral_transactions готова")
	return nil
}

func createNotificationsTable(ctx context.Context) error {
	_, err := Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            phone VARCHAR(32) NOT NULL,
            message TEXT NOT NULL,
            status VARCHAR(20) NOT NULL DEFAULT 'pending',
            error TEXT,
            created_at TIMESTAMP NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMP NOT NULL DEFAULT NOW()
        );
    `)
	if err != nil {
		return err
	}

	_, err = Pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(created_at) WHERE status = 'pending';
    `)
	if err != nil {
		return err
	}

	logging.Logger.Info("✅ Таблица notifications готова")
	return nil
}
