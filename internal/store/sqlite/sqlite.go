package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/marketsync/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath, creating its directory, and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== NotificationStore implementation ====

const notificationColumns = `id, user_id, type, category, priority, title, message, data,
	action_url, action_text, image_url, icon, is_read, created_at, read_at`

// CreateNotification stores a new notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	var data sql.NullString
	if len(n.Data) > 0 {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}
	priority := n.Priority
	if priority == "" {
		priority = store.PriorityMedium
	}

	query := `INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Category, priority, n.Title, n.Message, data,
		n.ActionURL, n.ActionText, n.ImageURL, n.Icon, n.IsRead, n.CreatedAt.UTC(), n.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.Priority = priority
	return nil
}

// GetNotification retrieves one notification of userID.
func (s *SQLiteStore) GetNotification(ctx context.Context, userID, id string) (*store.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ? AND user_id = ?`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns one page of the inbox, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, filter store.ListFilter) ([]*store.Notification, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.IsRead != nil {
		where = append(where, "is_read = ?")
		args = append(args, *filter.IsRead)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	filter.Limit = limit
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + clause + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*store.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// CountUnread returns the number of unread notifications of userID.
func (s *SQLiteStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkRead marks a notification read. Already read rows are left untouched.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE id = ? AND user_id = ? AND is_read = 0`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkAllRead marks every unread notification of userID read.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return affected(result)
}

// DeleteNotification removes one notification of userID.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	n, err := affected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ClearNotifications removes the whole inbox of userID.
func (s *SQLiteStore) ClearNotifications(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear notifications: %w", err)
	}
	return affected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*store.Notification, error) {
	var (
		n      store.Notification
		data   sql.NullString
		readAt sql.NullTime
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Category, &n.Priority, &n.Title, &n.Message, &data,
		&n.ActionURL, &n.ActionText, &n.ImageURL, &n.Icon, &n.IsRead, &n.CreatedAt, &readAt,
	)
	if err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}

func affected(result sql.Result) (int, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}

// ==== SettingsStore implementation ====

// GetSettings returns the stored preferences or the defaults.
func (s *SQLiteStore) GetSettings(ctx context.Context, userID string) (*store.NotificationSettings, error) {
	query := `
		SELECT user_id, push_enabled, email_enabled, email_booking_updates, email_offers,
			email_system_updates, booking_notifications, payment_notifications, offer_notifications,
			promotional_notifications, system_notifications, quiet_hours_enabled,
			quiet_hours_start, quiet_hours_end, updated_at
		FROM notification_settings
		WHERE user_id = ?
	`
	var st store.NotificationSettings
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&st.UserID, &st.PushEnabled, &st.EmailEnabled, &st.EmailBookingUpdates, &st.EmailOffers,
		&st.EmailSystemUpdates, &st.BookingNotifications, &st.PaymentNotifications, &st.OfferNotifications,
		&st.PromotionalNotifications, &st.SystemNotifications, &st.QuietHoursEnabled,
		&st.QuietHoursStart, &st.QuietHoursEnd, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DefaultSettings(userID), nil
		}
		return nil, fmt.Errorf("query settings: %w", err)
	}
	return &st, nil
}

// SaveSettings upserts the preferences of st.UserID.
func (s *SQLiteStore) SaveSettings(ctx context.Context, st *store.NotificationSettings) error {
	st.UpdatedAt = time.Now().UTC()
	query := `
		INSERT OR REPLACE INTO notification_settings (
			user_id, push_enabled, email_enabled, email_booking_updates, email_offers,
			email_system_updates, booking_notifications, payment_notifications, offer_notifications,
			promotional_notifications, system_notifications, quiet_hours_enabled,
			quiet_hours_start, quiet_hours_end, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		st.UserID, st.PushEnabled, st.EmailEnabled, st.EmailBookingUpdates, st.EmailOffers,
		st.EmailSystemUpdates, st.BookingNotifications, st.PaymentNotifications, st.OfferNotifications,
		st.PromotionalNotifications, st.SystemNotifications, st.QuietHoursEnabled,
		st.QuietHoursStart, st.QuietHoursEnd, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ==== KVStore implementation ====

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query kv %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete kv %s: %w", key, err)
		}
	}
	return nil
}
