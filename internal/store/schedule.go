package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/LOCAL2/itshard-items/internal/model"
)

// ScheduleStore is the durable local mirror of the remote item_schedules
// collection. It is a cache, never authoritative: its full content must be
// derivable by refetching from the remote store.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) GetAll() (map[string]model.ScheduleWindow, error) {
	rows, err := s.db.Query(`SELECT item_id, start_iso, end_iso FROM item_schedules`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	all := make(map[string]model.ScheduleWindow)
	for rows.Next() {
		var itemID string
		var w model.ScheduleWindow
		if err := rows.Scan(&itemID, &w.StartISO, &w.EndISO); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		all[itemID] = w
	}
	return all, rows.Err()
}

func (s *ScheduleStore) Upsert(itemID string, w model.ScheduleWindow) error {
	_, err := s.db.Exec(
		`INSERT INTO item_schedules (item_id, start_iso, end_iso, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET start_iso = excluded.start_iso, end_iso = excluded.end_iso, updated_at = excluded.updated_at`,
		itemID, w.StartISO, w.EndISO, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule %q: %w", itemID, err)
	}
	return nil
}

func (s *ScheduleStore) Delete(itemID string) error {
	_, err := s.db.Exec(`DELETE FROM item_schedules WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("delete schedule %q: %w", itemID, err)
	}
	return nil
}

// ReplaceAll swaps the whole mirror for the given mapping in one transaction.
// Used by hydration, where the remote always wins.
func (s *ScheduleStore) ReplaceAll(all map[string]model.ScheduleWindow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM item_schedules`); err != nil {
		return fmt.Errorf("clear schedules: %w", err)
	}
	now := time.Now().UTC()
	for itemID, w := range all {
		if _, err := tx.Exec(
			`INSERT INTO item_schedules (item_id, start_iso, end_iso, updated_at) VALUES (?, ?, ?, ?)`,
			itemID, w.StartISO, w.EndISO, now,
		); err != nil {
			return fmt.Errorf("insert schedule %q: %w", itemID, err)
		}
	}
	return tx.Commit()
}
