package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ContactRegistry – телефон → chat_id. Пользователь делится контактом с ботом,
// и с этого момента уведомления на его номер уходят в этот чат
type ContactRegistry struct {
	db          *sql.DB
	countryCode string
}

func NewContactRegistry(dbPath, countryCode string) (*ContactRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &ContactRegistry{db: db, countryCode: countryCode}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *ContactRegistry) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			phone TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			name TEXT,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_contacts_chat ON contacts(chat_id);
	`)
	return err
}

var errEmptyPhone = errors.New("contact has no phone number")

// Bind привязывает номер к чату; повторная привязка перезаписывает чат
func (r *ContactRegistry) Bind(ctx context.Context, rawPhone string, chatID int64, name string) (string, error) {
	phone := normalizePhone(rawPhone, r.countryCode)
	if phone == "" {
		return "", errEmptyPhone
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (phone, chat_id, name, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET chat_id = excluded.chat_id, name = excluded.name, updated_at = excluded.updated_at`,
		phone, chatID, name, time.Now().UTC())
	return phone, err
}

// ChatFor – чат для номера; ok == false, если номер не привязан
func (r *ContactRegistry) ChatFor(ctx context.Context, rawPhone string) (int64, bool, error) {
	phone := normalizePhone(rawPhone, r.countryCode)
	var chatID int64
	err := r.db.QueryRowContext(ctx, `SELECT chat_id FROM contacts WHERE phone = ?`, phone).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return chatID, true, nil
}

// Unbind – пользователь отписался (/stop)
func (r *ContactRegistry) Unbind(ctx context.Context, chatID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ContactRegistry) Close() error {
	return r.db.Close()
}
