package store

import (
	"database/sql"
	"time"
)

const prefLastTab = "last_tab"

// LastTab returns the persisted last-selected inbox tab for a business,
// or "" when none was saved yet.
func (db *DB) LastTab(businessID string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM prefs WHERE business_id = ? AND key = ?`,
		businessID, prefLastTab).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetLastTab persists the last-selected inbox tab for a business.
func (db *DB) SetLastTab(businessID, tab string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO prefs (business_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(business_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		businessID, prefLastTab, tab, now)
	return err
}
