package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dlemos/chatdesk/internal/chat"
)

// ReplaceSessions swaps the cached session list for the given snapshot
// in one transaction. Every refetch is a full-state replacement, so
// applying the same snapshot twice (or applying snapshots out of
// dispatch order) always converges on the latest server state.
func (db *DB) ReplaceSessions(sessions []chat.Session) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, s := range sessions {
		if _, err := tx.Exec(`
			INSERT INTO customers (id, name, email, avatar_url, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				avatar_url = excluded.avatar_url,
				updated_at = excluded.updated_at`,
			s.CustomerID, s.CustomerName, s.CustomerEmail, s.AvatarURL, now); err != nil {
			return fmt.Errorf("upsert customer %s: %w", s.CustomerID, err)
		}

		if _, err := tx.Exec(`
			INSERT INTO sessions (id, customer_id, status, unread_count, last_message_text, last_message_at, updated_at, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.CustomerID, string(s.Status), s.UnreadCount, s.LastMessageText, s.LastMessageAt, s.UpdatedAt, now); err != nil {
			return fmt.Errorf("insert session %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ListSessions returns cached sessions sorted descending by resolved
// last-message date (last message timestamp, else the session's own
// updated-at). Customer display fields are resolved via join.
func (db *DB) ListSessions(limit, offset int) ([]chat.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(sessionSelect+`
		ORDER BY CASE WHEN s.last_message_at != 0 THEN s.last_message_at ELSE s.updated_at END DESC,
			s.rowid ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []chat.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns a single cached session, or nil when absent.
func (db *DB) GetSession(id string) (*chat.Session, error) {
	row := db.QueryRow(sessionSelect+` WHERE s.id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkSessionRead zeroes the local unread counter when the agent opens a
// session. The server stays authoritative: the next summary snapshot
// overwrites this bookkeeping.
func (db *DB) MarkSessionRead(id string) error {
	_, err := db.Exec(`UPDATE sessions SET unread_count = 0 WHERE id = ?`, id)
	return err
}

// BumpPreview patches a session's last-message preview optimistically,
// ahead of the next summary refetch. The timestamp only moves forward.
func (db *DB) BumpPreview(id, text string, ts int64) error {
	_, err := db.Exec(`
		UPDATE sessions SET
			last_message_text = CASE WHEN ? >= last_message_at THEN ? ELSE last_message_text END,
			last_message_at = MAX(last_message_at, ?)
		WHERE id = ?`, ts, text, ts, id)
	return err
}

// ApplyIncoming records a customer message arriving by push: the preview
// is bumped and the unread counter incremented.
func (db *DB) ApplyIncoming(id, text string, ts int64) error {
	if err := db.BumpPreview(id, text, ts); err != nil {
		return err
	}
	_, err := db.Exec(`UPDATE sessions SET unread_count = unread_count + 1 WHERE id = ?`, id)
	return err
}

const sessionSelect = `
	SELECT s.id, s.customer_id,
		COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.avatar_url, ''),
		s.status, s.unread_count, s.last_message_text, s.last_message_at, s.updated_at
	FROM sessions s
	LEFT JOIN customers c ON s.customer_id = c.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (chat.Session, error) {
	var s chat.Session
	var status string
	err := r.Scan(&s.ID, &s.CustomerID, &s.CustomerName, &s.CustomerEmail, &s.AvatarURL,
		&status, &s.UnreadCount, &s.LastMessageText, &s.LastMessageAt, &s.UpdatedAt)
	if err != nil {
		return chat.Session{}, err
	}
	s.Status = chat.Status(status)
	return s, nil
}
