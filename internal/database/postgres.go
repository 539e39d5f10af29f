package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL database
func ConnectPostgres(postgresURI string) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	// Set connection pool settings
	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err = PostgresDB.Ping(); err != nil {
		return err
	}

	log.Println("✅ Connected to PostgreSQL")

	// Initialize tables
	if err = InitPostgresTables(); err != nil {
		return err
	}

	return nil
}

// InitPostgresTables creates all necessary tables if they don't exist
func InitPostgresTables() error {
	for _, query := range schema {
		if _, err := PostgresDB.Exec(query); err != nil {
			return err
		}
	}
	log.Println("✅ PostgreSQL tables initialized")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}

var schema = []string{
	// Users mirror identities issued by the identity provider
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS influencer_profiles (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		bio TEXT NOT NULL DEFAULT '',
		message_price NUMERIC(10,2) NOT NULL DEFAULT 5.00,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		categories TEXT[] NOT NULL DEFAULT '{}',
		social_links TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(user_id)
	)`,

	// Balance is kept non-negative by the conditional debit, not by a CHECK
	`CREATE TABLE IF NOT EXISTS user_credits (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		balance INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS credit_transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL,
		type VARCHAR(20) NOT NULL,
		external_ref TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// One credit per external payment, whatever the webhook retry count
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transactions_external_ref
		ON credit_transactions(external_ref) WHERE external_ref IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions(user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		influencer_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(user_id, influencer_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_influencer ON conversations(influencer_id, last_message_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, last_message_at DESC)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS voice_memos (
		id UUID PRIMARY KEY,
		message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		influencer_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		file_url TEXT NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(message_id)
	)`,

	`CREATE TABLE IF NOT EXISTS notification_outbox (
		id UUID PRIMARY KEY,
		kind VARCHAR(50) NOT NULL,
		recipient_id TEXT NOT NULL,
		to_address TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		sent_at TIMESTAMPTZ,
		claimed_until TIMESTAMPTZ
	)`,
	`ALTER TABLE notification_outbox ADD COLUMN IF NOT EXISTS claimed_until TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_notification_outbox_pending
		ON notification_outbox(created_at) WHERE status = 'pending'`,
}
