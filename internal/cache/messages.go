package cache

import (
	"encoding/json"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// UpsertMessage inserts or updates a message snapshot (idempotent on
// chat_id + msg_id). Provisional entries are the caller's problem; the cache
// never sees temp ids.
func (db *DB) UpsertMessage(m store.Message) error {
	attachments, err := marshalAttachments(m.Attachments)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO messages (chat_id, msg_id, sender, content, attachments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			content = excluded.content,
			attachments = excluded.attachments,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		m.ChatID, m.ID, m.Sender, m.Content, nullable(attachments), string(m.Status),
		m.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

// ReplaceMessages rewrites one chat's message snapshots in one transaction.
func (db *DB) ReplaceMessages(chatID string, msgs []store.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if store.IsTempID(m.ID) {
			continue
		}
		attachments, err := marshalAttachments(m.Attachments)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (chat_id, msg_id, sender, content, attachments, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chatID, m.ID, m.Sender, m.Content, nullable(attachments), string(m.Status),
			m.CreatedAt.UnixMilli(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns the cached messages for a chat in chronological order.
func (db *DB) ListMessages(chatID string) ([]store.Message, error) {
	rows, err := db.Query(`
		SELECT chat_id, msg_id, sender, content, attachments, status, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, msg_id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []store.Message
	for rows.Next() {
		var (
			m           store.Message
			attachments []byte
			status      string
			createdAt   int64
		)
		if err := rows.Scan(&m.ChatID, &m.ID, &m.Sender, &m.Content, &attachments, &status, &createdAt); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
				return nil, err
			}
		}
		m.Status = store.Status(status)
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func marshalAttachments(atts []store.Attachment) ([]byte, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	return json.Marshal(atts)
}
