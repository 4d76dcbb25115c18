package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remanflow/domain"
)

// Request lifecycle states tracked by the pipeline.
const (
	RequestSubmitted         = "submitted"
	RequestAwaitingSelection = "awaiting_selection"
	RequestPlanned           = "planned"
	RequestFailed            = "failed"
)

type RequestRecord struct {
	Request      domain.Request `json:"request"`
	Status       string         `json:"status"`
	WorkflowType string         `json:"workflow_type,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (db *DB) CreateRequest(req domain.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	now := db.stamp()
	_, err = db.Exec(db.Q(`INSERT INTO requests (id, customer_id, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		req.ID, req.CustomerID, RequestSubmitted, string(data), now, now)
	return err
}

// UpdateRequestStatus records pipeline progress. An empty workflow keeps
// the stored one.
func (db *DB) UpdateRequestStatus(id, status, workflow, errMsg string) error {
	query := `UPDATE requests SET status = ?, error = ?, updated_at = ? WHERE id = ?`
	args := []any{status, errMsg, db.stamp(), id}
	if workflow != "" {
		query = `UPDATE requests SET status = ?, error = ?, updated_at = ?, workflow_type = ? WHERE id = ?`
		args = []any{status, errMsg, db.stamp(), workflow, id}
	}
	res, err := db.Exec(db.Q(query), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return nil
}

const requestCols = `status, workflow_type, error, data, created_at, updated_at`

func scanRequest(sc interface{ Scan(...any) error }) (*RequestRecord, error) {
	var r RequestRecord
	var data, created, updated string
	if err := sc.Scan(&r.Status, &r.WorkflowType, &r.Error, &data, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &r.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	var tp timeParser
	r.CreatedAt = tp.at(created)
	r.UpdatedAt = tp.at(updated)
	if tp.err != nil {
		return nil, fmt.Errorf("request %s: %w", r.Request.ID, tp.err)
	}
	return &r, nil
}

func (db *DB) GetRequest(id string) (*RequestRecord, error) {
	r, err := scanRequest(db.QueryRow(db.Q(`SELECT `+requestCols+` FROM requests WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (db *DB) ListRequests(limit int) ([]*RequestRecord, error) {
	rows, err := db.Query(db.Q(`SELECT `+requestCols+` FROM requests ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RequestRecord
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
