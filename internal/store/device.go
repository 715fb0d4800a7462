package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Keys for device-local state. These are the only keys the agent writes;
// unknown keys found in the table are preserved untouched.
const (
	KeyDeviceID          = "itshard_manager_uuid"
	KeyManagerSession    = "itshard_manager_session"
	KeyPinAttempts       = "itshard_manager_pin_attempts"
	KeyPinLockedUntil    = "itshard_manager_pin_locked_until"
	KeyLastMessageID     = "itshard_discord_last_message_id"
	KeyNotificationsPref = "itshard_notifications_enabled"
	KeyThemeMode         = "theme_mode"
	KeyShowCalendar      = "show_calendar_view"
)

// ErrNotFound is returned when a settings key has never been written.
var ErrNotFound = fmt.Errorf("setting not found")

// DeviceStore is the device-local key/value storage: opaque string blobs for
// the device identifier, the manager session, lockout hints and UI
// preferences. Callers must tolerate absence (first run) and unparseable
// values (fail safe to defaults).
type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *DeviceStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *DeviceStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

func (s *DeviceStore) GetAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}
