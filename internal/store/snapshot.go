package store

import (
	"fmt"
	"time"

	"github.com/pedrohsa/wainbox/internal/model"
)

// ReplaceConversations overwrites the cached conversation snapshot for a
// business in one transaction. Called after a successful reset or silent
// refresh so the next boot can warm-start.
func (db *DB) ReplaceConversations(businessID string, convs []model.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations WHERE business_id = ?`, businessID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range convs {
		if c.ContactID == "" {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (
				business_id, contact_id, id, contact_phone, contact_name,
				last_message_preview, last_message_at, unread_count, status,
				number_id, number_label, within_24h,
				assigned_to_user_id, assigned_to_user_name,
				source_name, mode, first_seen_at, last_inbound_at, last_outbound_at,
				updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			businessID, c.ContactID, c.ID, c.ContactPhone, c.ContactName,
			c.LastMessagePreview, toMillis(c.LastMessageAt), c.UnreadCount, string(c.Status),
			c.NumberID, c.NumberLabel, c.Within24h,
			c.AssignedToUserID, c.AssignedToUserName,
			c.SourceName, c.Mode, toMillis(c.FirstSeenAt), toMillis(c.LastInboundAt), toMillis(c.LastOutboundAt),
			now); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ContactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadConversations returns the cached snapshot for a business, most
// recent first.
func (db *DB) LoadConversations(businessID string) ([]model.Conversation, error) {
	rows, err := db.Query(`
		SELECT contact_id, id, contact_phone, contact_name,
			last_message_preview, last_message_at, unread_count, status,
			number_id, number_label, within_24h,
			assigned_to_user_id, assigned_to_user_name,
			source_name, mode, first_seen_at, last_inbound_at, last_outbound_at
		FROM conversations
		WHERE business_id = ?
		ORDER BY last_message_at DESC`, businessID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var status string
		var lastMsg, firstSeen, lastIn, lastOut int64
		if err := rows.Scan(&c.ContactID, &c.ID, &c.ContactPhone, &c.ContactName,
			&c.LastMessagePreview, &lastMsg, &c.UnreadCount, &status,
			&c.NumberID, &c.NumberLabel, &c.Within24h,
			&c.AssignedToUserID, &c.AssignedToUserName,
			&c.SourceName, &c.Mode, &firstSeen, &lastIn, &lastOut); err != nil {
			return nil, err
		}
		c.Status = model.ConversationStatus(status)
		c.LastMessageAt = fromMillis(lastMsg)
		c.FirstSeenAt = fromMillis(firstSeen)
		c.LastInboundAt = fromMillis(lastIn)
		c.LastOutboundAt = fromMillis(lastOut)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
