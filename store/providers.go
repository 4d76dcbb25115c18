package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remanflow/domain"
)

// ProviderRecord is a registered provider plus registry bookkeeping.
type ProviderRecord struct {
	domain.Provider
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// UpsertProvider registers a provider or refreshes its capabilities.
// The enabled flag is left alone on update so an operator's disable sticks.
func (db *DB) UpsertProvider(p domain.Provider) error {
	caps, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	now := db.stamp()
	_, err = db.Exec(db.Q(`INSERT INTO providers (id, name, capabilities, max_power_kw, max_axis_height_mm, enabled, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`+upsert("id", "name", "capabilities", "max_power_kw", "max_axis_height_mm", "last_seen")),
		p.ID, p.Name, string(caps), p.MaxPowerKW, p.MaxAxisHeightMM, boolInt(p.Enabled), now, now)
	return err
}

func (db *DB) SetProviderEnabled(id string, enabled bool) error {
	res, err := db.Exec(db.Q(`UPDATE providers SET enabled = ? WHERE id = ?`), boolInt(enabled), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) TouchProvider(id string) error {
	_, err := db.Exec(db.Q(`UPDATE providers SET last_seen = ? WHERE id = ?`), db.stamp(), id)
	return err
}

func (db *DB) DeleteProvider(id string) error {
	_, err := db.Exec(db.Q(`DELETE FROM providers WHERE id = ?`), id)
	return err
}

const providerCols = `id, name, capabilities, max_power_kw, max_axis_height_mm, enabled, last_seen, created_at`

func scanProvider(sc interface{ Scan(...any) error }) (*ProviderRecord, error) {
	var r ProviderRecord
	var caps, created string
	var enabled int
	var lastSeen sql.NullString
	if err := sc.Scan(&r.ID, &r.Name, &caps, &r.MaxPowerKW, &r.MaxAxisHeightMM, &enabled, &lastSeen, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &r.Capabilities); err != nil {
		return nil, fmt.Errorf("provider %s capabilities: %w", r.ID, err)
	}
	r.Enabled = enabled != 0
	var tp timeParser
	r.LastSeen = tp.nullable(lastSeen)
	r.CreatedAt = tp.at(created)
	if tp.err != nil {
		return nil, fmt.Errorf("provider %s: %w", r.ID, tp.err)
	}
	return &r, nil
}

func (db *DB) GetProvider(id string) (*ProviderRecord, error) {
	r, err := scanProvider(db.QueryRow(db.Q(`SELECT `+providerCols+` FROM providers WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (db *DB) ListProviders() ([]*ProviderRecord, error) {
	rows, err := db.Query(`SELECT ` + providerCols + ` FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ProviderRecord
	for rows.Next() {
		r, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnabledProviders returns the providers eligible for matching.
func (db *DB) EnabledProviders() ([]domain.Provider, error) {
	recs, err := db.ListProviders()
	if err != nil {
		return nil, err
	}
	var out []domain.Provider
	for _, r := range recs {
		if r.Enabled {
			out = append(out, r.Provider)
		}
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
