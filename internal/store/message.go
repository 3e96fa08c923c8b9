package store

import (
	"fmt"
	"time"

	"github.com/dlemos/chatdesk/internal/chat"
)

// ReplaceTimeline swaps a session's cached messages for the given
// snapshot in one transaction. Only synced rows are replaced: optimistic
// sending/failed entries survive until the outbox resolves them, so an
// in-flight send is never wiped by a concurrent refetch.
func (db *DB) ReplaceTimeline(sessionID string, msgs []chat.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ? AND status = ?`,
		sessionID, StatusSynced); err != nil {
		return fmt.Errorf("clear timeline: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (session_id, msg_id, sender_id, sender_name, body, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				status = excluded.status,
				timestamp = excluded.timestamp`,
			sessionID, m.ID, m.SenderID, m.SenderName, m.Text, StatusSynced, m.Timestamp, now); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit timeline: %w", err)
	}
	return nil
}

// UpsertMessage inserts or updates a single timeline entry (idempotent
// on session id + message id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (session_id, msg_id, sender_id, sender_name, body, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			status = excluded.status,
			timestamp = excluded.timestamp`,
		m.SessionID, m.ID, m.SenderID, m.SenderName, m.Text, m.Status, m.Timestamp, now)
	return err
}

// ResolveOptimistic replaces an optimistic entry with the confirmed
// server message. Confirmed snapshots always win over optimistic ones,
// regardless of which arrived last: the optimistic row is removed and
// the server row upserted (a refetch may already have brought it in).
func (db *DB) ResolveOptimistic(sessionID, clientMsgID string, confirmed chat.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ? AND msg_id = ?`,
		sessionID, clientMsgID); err != nil {
		return fmt.Errorf("drop optimistic row: %w", err)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO messages (session_id, msg_id, sender_id, sender_name, body, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, msg_id) DO UPDATE SET
			body = excluded.body,
			status = excluded.status,
			timestamp = excluded.timestamp`,
		sessionID, confirmed.ID, confirmed.SenderID, confirmed.SenderName, confirmed.Text,
		StatusSynced, confirmed.Timestamp, now); err != nil {
		return fmt.Errorf("upsert confirmed row: %w", err)
	}

	return tx.Commit()
}

// MarkMessageFailed flips an optimistic entry to failed so it stays
// visible for an agent-triggered retry.
func (db *DB) MarkMessageFailed(sessionID, clientMsgID string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE session_id = ? AND msg_id = ?`,
		StatusFailed, sessionID, clientMsgID)
	return err
}

// MarkMessageSending returns a failed entry to sending state when the
// agent retries it.
func (db *DB) MarkMessageSending(sessionID, clientMsgID string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE session_id = ? AND msg_id = ?`,
		StatusSending, sessionID, clientMsgID)
	return err
}

// ListMessages returns a session's cached timeline oldest-first for
// chronological display.
func (db *DB) ListMessages(sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT session_id, msg_id, sender_id, sender_name, body, status, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.SessionID, &m.ID, &m.SenderID, &m.SenderName, &m.Text, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
