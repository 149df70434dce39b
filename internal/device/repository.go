package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository defines the interface for device cache persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// The store is the single writer: persistence is a full snapshot
// rewrite, never row-level mutation, so the saved state is always a
// complete picture of some in-memory state.
type Repository interface {
	// LoadDevices retrieves every persisted device.
	LoadDevices(ctx context.Context) ([]Device, error)

	// LoadOccupancy retrieves every persisted occupancy event, oldest
	// first.
	LoadOccupancy(ctx context.Context) ([]OccupancyEvent, error)

	// SaveSnapshot atomically replaces the persisted state with the
	// given snapshot. Either the whole snapshot lands or none of it.
	SaveSnapshot(ctx context.Context, devices []Device, events []OccupancyEvent) error
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

// LoadDevices retrieves every persisted device.
func (r *SQLiteRepository) LoadDevices(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, node_id, endpoint_id, kind, attributes, available, updated_at
		FROM devices
		ORDER BY node_id, endpoint_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// LoadOccupancy retrieves every persisted occupancy event, oldest first.
func (r *SQLiteRepository) LoadOccupancy(ctx context.Context) ([]OccupancyEvent, error) {
	query := `
		SELECT device_id, occupied, observed_at
		FROM occupancy_events
		ORDER BY device_id, observed_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying occupancy events: %w", err)
	}
	defer rows.Close()

	var events []OccupancyEvent
	for rows.Next() {
		var (
			ev         OccupancyEvent
			occupied   int
			observedAt string
		)
		if err := rows.Scan(&ev.DeviceID, &occupied, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning occupancy event: %w", err)
		}

		ev.Occupied = occupied != 0
		ev.ObservedAt, err = time.Parse(time.RFC3339, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating occupancy events: %w", err)
	}
	return events, nil
}

// SaveSnapshot atomically replaces the persisted state with the given
// snapshot. Both tables are rewritten in one transaction.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, devices []Device, events []OccupancyEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM occupancy_events"); err != nil {
		return fmt.Errorf("clearing occupancy events: %w", err)
	}

	insertDevice := `
		INSERT INTO devices (id, node_id, endpoint_id, kind, attributes, available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	for i := range devices {
		d := &devices[i]

		attrsJSON, err := json.Marshal(d.Attributes)
		if err != nil {
			return fmt.Errorf("marshalling attributes for %s: %w", d.ID, err)
		}

		if _, err := tx.ExecContext(ctx, insertDevice,
			d.ID,
			d.NodeID,
			d.EndpointID,
			string(d.Kind),
			string(attrsJSON),
			boolToInt(d.Available),
			d.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	insertEvent := `
		INSERT INTO occupancy_events (device_id, occupied, observed_at)
		VALUES (?, ?, ?)`

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, insertEvent,
			ev.DeviceID,
			boolToInt(ev.Occupied),
			ev.ObservedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting occupancy event for %s: %w", ev.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var (
		d         Device
		kind      string
		attrsJSON string
		available int
		updatedAt string
	)

	err := scanner.Scan(
		&d.ID,
		&d.NodeID,
		&d.EndpointID,
		&kind,
		&attrsJSON,
		&available,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Available = available != 0

	d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(attrsJSON), &d.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshalling attributes: %w", err)
	}

	return &d, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
