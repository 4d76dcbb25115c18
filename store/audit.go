package store

import (
	"fmt"
	"time"
)

type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (db *DB) AppendAudit(e *AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = db.now()
	}
	id, err := db.insert(`INSERT INTO audit_log (entity_type, entity_id, action, detail, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.EntityType, e.EntityID, e.Action, e.Detail, e.Actor, formatTime(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (db *DB) ListAudit(entityType, entityID string, limit int) ([]*AuditEntry, error) {
	rows, err := db.Query(db.Q(`SELECT id, entity_type, entity_id, action, detail, actor, created_at FROM audit_log
		WHERE entity_type = ? AND entity_id = ? ORDER BY id DESC LIMIT ?`), entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Detail, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		var tp timeParser
		e.CreatedAt = tp.at(createdAt)
		if tp.err != nil {
			return nil, fmt.Errorf("audit %d: %w", e.ID, tp.err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
