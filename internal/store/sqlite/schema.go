package sqlite

import (
	"database/sql"
	"fmt"
)

// Schema creates every table the store uses. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL DEFAULT 'medium',
	title       TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	data        TEXT,
	action_url  TEXT NOT NULL DEFAULT '',
	action_text TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	icon        TEXT NOT NULL DEFAULT '',
	is_read     BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	read_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notification_settings (
	user_id                   TEXT PRIMARY KEY,
	push_enabled              BOOLEAN NOT NULL,
	email_enabled             BOOLEAN NOT NULL,
	email_booking_updates     BOOLEAN NOT NULL,
	email_offers              BOOLEAN NOT NULL,
	email_system_updates      BOOLEAN NOT NULL,
	booking_notifications     BOOLEAN NOT NULL,
	payment_notifications     BOOLEAN NOT NULL,
	offer_notifications       BOOLEAN NOT NULL,
	promotional_notifications BOOLEAN NOT NULL,
	system_notifications      BOOLEAN NOT NULL,
	quiet_hours_enabled       BOOLEAN NOT NULL,
	quiet_hours_start         TEXT NOT NULL DEFAULT '',
	quiet_hours_end           TEXT NOT NULL DEFAULT '',
	updated_at                DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
