package store

import (
	"fmt"
	"time"
)

// Booking is a provider time slot reserved for a plan step.
type Booking struct {
	ID         int64     `json:"id"`
	ProviderID string    `json:"provider_id"`
	PlanID     string    `json:"plan_id"`
	StepID     string    `json:"step_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateBooking reserves a slot. Re-booking the same plan step moves it.
func (db *DB) CreateBooking(b *Booking) error {
	id, err := db.insert(`INSERT INTO bookings (provider_id, plan_id, step_id, start_at, end_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`+
		upsert("plan_id, step_id", "provider_id", "start_at", "end_at"),
		b.ProviderID, b.PlanID, b.StepID, formatTime(b.Start), formatTime(b.End), db.stamp())
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// ListBookings returns the provider's bookings that end after from.
func (db *DB) ListBookings(providerID string, from time.Time) ([]Booking, error) {
	rows, err := db.Query(db.Q(`SELECT id, provider_id, plan_id, step_id, start_at, end_at, created_at FROM bookings
		WHERE provider_id = ? AND end_at > ? ORDER BY start_at`), providerID, formatTime(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		var b Booking
		var start, end, created string
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.PlanID, &b.StepID, &start, &end, &created); err != nil {
			return nil, err
		}
		var tp timeParser
		b.Start = tp.at(start)
		b.End = tp.at(end)
		b.CreatedAt = tp.at(created)
		if tp.err != nil {
			return nil, fmt.Errorf("booking %d: %w", b.ID, tp.err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeletePlanBookings releases every slot held for a plan.
func (db *DB) DeletePlanBookings(planID string) (int64, error) {
	res, err := db.Exec(db.Q(`DELETE FROM bookings WHERE plan_id = ?`), planID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
