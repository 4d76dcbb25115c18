package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MaxOutboxRetries is how many failed publishes a row gets before it is
// left for an operator.
const MaxOutboxRetries = 10

type OutboxMessage struct {
	ID        int64
	Topic     string
	MsgType   string
	Payload   []byte
	Retries   int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueOutbox(topic, msgType string, payload []byte) (int64, error) {
	return db.insert(`INSERT INTO outbox (topic, msg_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		topic, msgType, payload, db.stamp())
}

func (db *DB) ListPendingOutbox(limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, msg_type, payload, retries, last_error, created_at, sent_at FROM outbox
		WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), MaxOutboxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var created string
		var sent sql.NullString
		if err := rows.Scan(&m.ID, &m.Topic, &m.MsgType, &m.Payload, &m.Retries, &m.LastError, &created, &sent); err != nil {
			return nil, err
		}
		var tp timeParser
		m.CreatedAt = tp.at(created)
		m.SentAt = tp.nullable(sent)
		if tp.err != nil {
			return nil, fmt.Errorf("outbox %d: %w", m.ID, tp.err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at = ? WHERE id = ?`), db.stamp(), id)
	return err
}

func (db *DB) FailOutbox(id int64, reason string) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries = retries + 1, last_error = ? WHERE id = ?`), reason, id)
	return err
}

// PendingOutboxCount feeds the outbox backlog gauge.
func (db *DB) PendingOutboxCount() (int, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL AND retries < ?`), MaxOutboxRetries).Scan(&n)
	return n, err
}
