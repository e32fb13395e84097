package cache

import (
	"encoding/json"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// UpsertChat inserts or updates a chat snapshot (idempotent on id).
func (db *DB) UpsertChat(c store.Chat) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	var last []byte
	if c.LastMessage != nil {
		if last, err = json.Marshal(c.LastMessage); err != nil {
			return err
		}
	}
	_, err = db.Exec(`
		INSERT INTO chats (id, participants, unread_count, last_message, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participants = excluded.participants,
			unread_count = excluded.unread_count,
			last_message = excluded.last_message,
			updated_at = excluded.updated_at`,
		c.ID, string(participants), c.UnreadCount, nullable(last), time.Now().UnixMilli())
	return err
}

// ReplaceChats rewrites the chat table from a full snapshot in one
// transaction.
func (db *DB) ReplaceChats(chats []store.Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, c := range chats {
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return err
		}
		var last []byte
		if c.LastMessage != nil {
			if last, err = json.Marshal(c.LastMessage); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO chats (id, participants, unread_count, last_message, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, string(participants), c.UnreadCount, nullable(last), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListChats returns the cached chat snapshots in stored order.
func (db *DB) ListChats() ([]store.Chat, error) {
	rows, err := db.Query(`
		SELECT id, participants, unread_count, last_message
		FROM chats
		ORDER BY updated_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []store.Chat
	for rows.Next() {
		var (
			c            store.Chat
			participants string
			last         []byte
		)
		if err := rows.Scan(&c.ID, &participants, &c.UnreadCount, &last); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			return nil, err
		}
		if len(last) > 0 {
			var m store.Message
			if err := json.Unmarshal(last, &m); err != nil {
				return nil, err
			}
			c.LastMessage = &m
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
