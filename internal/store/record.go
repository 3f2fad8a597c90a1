package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is one stored node row. Data is the schemaless payload;
// reserved keys (underscore prefix) inside it carry identity, ledger
// chains, and hierarchy links.
type Record struct {
	ID        string
	Class     string
	ConfigID  string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Get loads a record by internal id. The second return reports
// presence: a missing record is (nil, false, nil), not an error.
func (s *Store) Get(ctx context.Context, id string) (*Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, class, config_id, data, created_at, updated_at
		FROM nodes WHERE id = ?
	`, id)

	var rec Record
	var configID sql.NullString
	var dataJSON, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.Class, &configID, &dataJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get node %s: %w", id, err)
	}

	rec.ConfigID = configID.String
	if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
		return nil, false, fmt.Errorf("get node %s: decode data: %w", id, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, false, fmt.Errorf("get node %s: parse created_at: %w", id, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, false, fmt.Errorf("get node %s: parse updated_at: %w", id, err)
	}
	return &rec, true, nil
}

// Put upserts a record. On conflict the payload and updated_at are
// replaced; created_at keeps its original value.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("put node %s: encode data: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, class, config_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			class = excluded.class,
			config_id = excluded.config_id,
			data = excluded.data,
			updated_at = excluded.updated_at
	`,
		rec.ID,
		rec.Class,
		nullable(rec.ConfigID),
		string(dataJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put node %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a record by id. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

// Has reports whether a record exists.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check node %s: %w", id, err)
	}
	return count > 0, nil
}

// Keys returns all stored internal ids in insertion-independent
// (sorted) order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list node ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list node ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
