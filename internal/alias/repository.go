package alias

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one persisted alias binding. Records load and save in
// assignment order.
type Record struct {
	Alias     string
	DeviceID  string
	CreatedAt time.Time
}

// Repository defines the interface for alias persistence.
// The resolver is the single writer: persistence is a full table
// rewrite, never row-level mutation.
type Repository interface {
	// LoadAliases retrieves every persisted binding in assignment order.
	LoadAliases(ctx context.Context) ([]Record, error)

	// SaveAliases atomically replaces the persisted table with the given
	// bindings.
	SaveAliases(ctx context.Context, records []Record) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadAliases retrieves every persisted binding in assignment order.
func (r *SQLiteRepository) LoadAliases(ctx context.Context) ([]Record, error) {
	query := `
		SELECT alias, device_id, created_at
		FROM aliases
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			createdAt string
		)
		if err := rows.Scan(&rec.Alias, &rec.DeviceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning alias row: %w", err)
		}

		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aliases: %w", err)
	}
	return records, nil
}

// SaveAliases atomically replaces the persisted table with the given
// bindings. Insertion order preserves assignment order through the
// autoincrement row id.
func (r *SQLiteRepository) SaveAliases(ctx context.Context, records []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting alias transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM aliases"); err != nil {
		return fmt.Errorf("clearing aliases: %w", err)
	}

	insert := `
		INSERT INTO aliases (alias, device_id, created_at)
		VALUES (?, ?, ?)`

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, insert,
			rec.Alias,
			rec.DeviceID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting alias %q: %w", rec.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing aliases: %w", err)
	}
	return nil
}
