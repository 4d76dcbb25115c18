package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"remanflow/domain"
)

// SaveStrategies replaces the stored strategies for a request.
func (db *DB) SaveStrategies(requestID string, strategies []domain.Strategy) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(db.Q(`DELETE FROM strategies WHERE request_id = ?`), requestID); err != nil {
		return err
	}
	now := db.stamp()
	for _, s := range strategies {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode strategy %s: %w", s.ID, err)
		}
		if _, err := tx.Exec(db.Q(`INSERT INTO strategies (id, request_id, priority, data, created_at) VALUES (?, ?, ?, ?, ?)`),
			s.ID, requestID, s.Priority.String(), string(data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) ListStrategies(requestID string) ([]domain.Strategy, error) {
	rows, err := db.Query(db.Q(`SELECT data FROM strategies WHERE request_id = ? ORDER BY created_at, id`), requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Strategy
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var s domain.Strategy
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode strategy: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domain.SortByPriority(out)
	return out, nil
}

func (db *DB) GetStrategy(id string) (*domain.Strategy, error) {
	var data string
	err := db.QueryRow(db.Q(`SELECT data FROM strategies WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("strategy %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var s domain.Strategy
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode strategy: %w", err)
	}
	return &s, nil
}
