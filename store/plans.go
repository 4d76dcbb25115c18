package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"remanflow/domain"
)

func (db *DB) CreatePlan(p *domain.Plan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", p.ID, err)
	}
	now := db.stamp()
	_, err = db.Exec(db.Q(`INSERT INTO plans (id, request_id, customer_id, status, current_step, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.RequestID, p.CustomerID, p.Status.String(), p.CurrentStep, string(data), formatTime(p.CreatedAt), now)
	return err
}

// CompareAndSwapPlan writes p only if the stored row still has the given
// status and current step. It reports whether the row was updated.
func (db *DB) CompareAndSwapPlan(p *domain.Plan, fromStatus domain.PlanStatus, fromStep int) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encode plan %s: %w", p.ID, err)
	}
	res, err := db.Exec(db.Q(`UPDATE plans SET status = ?, current_step = ?, data = ?, updated_at = ?
		WHERE id = ? AND status = ? AND current_step = ?`),
		p.Status.String(), p.CurrentStep, string(data), db.stamp(), p.ID, fromStatus.String(), fromStep)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func decodePlan(data string) (*domain.Plan, error) {
	var p domain.Plan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}

func (db *DB) GetPlan(id string) (*domain.Plan, error) {
	var data string
	err := db.QueryRow(db.Q(`SELECT data FROM plans WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodePlan(data)
}

func (db *DB) GetPlanByRequest(requestID string) (*domain.Plan, error) {
	var data string
	err := db.QueryRow(db.Q(`SELECT data FROM plans WHERE request_id = ? ORDER BY created_at DESC LIMIT 1`), requestID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan for request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodePlan(data)
}

func (db *DB) queryPlans(query string, args ...any) ([]*domain.Plan, error) {
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Plan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodePlan(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPlans returns the newest plans first. A zero status lists all.
func (db *DB) ListPlans(status domain.PlanStatus, limit int) ([]*domain.Plan, error) {
	if status == 0 {
		return db.queryPlans(`SELECT data FROM plans ORDER BY created_at DESC LIMIT ?`, limit)
	}
	return db.queryPlans(`SELECT data FROM plans WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status.String(), limit)
}

// ListActivePlans returns plans that still have work outstanding.
func (db *DB) ListActivePlans() ([]*domain.Plan, error) {
	return db.queryPlans(`SELECT data FROM plans WHERE status IN (?, ?) ORDER BY created_at`,
		domain.PlanConfirmed.String(), domain.PlanInProgress.String())
}

// CountPlansByStatus is used for gauges.
func (db *DB) CountPlansByStatus() (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM plans GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
