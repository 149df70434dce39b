package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the cache tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id          TEXT PRIMARY KEY,
			node_id     INTEGER NOT NULL,
			endpoint_id INTEGER NOT NULL,
			kind        TEXT NOT NULL,
			attributes  TEXT NOT NULL DEFAULT '{}',
			available   INTEGER NOT NULL DEFAULT 1,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE occupancy_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id   TEXT NOT NULL,
			occupied    INTEGER NOT NULL,
			observed_at TEXT NOT NULL
		);
		CREATE INDEX idx_occupancy_device_time ON occupancy_events(device_id, observed_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteRepository_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	devices := []Device{
		{
			ID:         "dev_1_1",
			NodeID:     1,
			EndpointID: 1,
			Kind:       KindLight,
			Attributes: Attributes{AttrPower: true, AttrBrightness: 0.75},
			Available:  true,
			UpdatedAt:  now,
		},
		{
			ID:         "dev_2_1",
			NodeID:     2,
			EndpointID: 1,
			Kind:       KindSensor,
			Attributes: Attributes{AttrTemperature: 21.5},
			Available:  false,
			UpdatedAt:  now,
		},
	}
	events := []OccupancyEvent{
		{DeviceID: "dev_2_1", Occupied: true, ObservedAt: now},
		{DeviceID: "dev_2_1", Occupied: false, ObservedAt: now.Add(time.Minute)},
	}

	if err := repo.SaveSnapshot(ctx, devices, events); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	t.Run("loads devices back", func(t *testing.T) {
		got, err := repo.LoadDevices(ctx)
		if err != nil {
			t.Fatalf("LoadDevices() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("LoadDevices() returned %d devices, want 2", len(got))
		}

		light := got[0]
		if light.ID != "dev_1_1" {
			t.Errorf("ID = %q, want dev_1_1", light.ID)
		}
		if light.Kind != KindLight {
			t.Errorf("Kind = %q, want %q", light.Kind, KindLight)
		}
		if !light.Available {
			t.Error("Available = false, want true")
		}
		if light.Attributes[AttrPower] != true {
			t.Errorf("power = %v, want true", light.Attributes[AttrPower])
		}
		// JSON numbers decode as float64.
		if light.Attributes[AttrBrightness] != 0.75 {
			t.Errorf("brightness = %v, want 0.75", light.Attributes[AttrBrightness])
		}
		if !light.UpdatedAt.Equal(now) {
			t.Errorf("UpdatedAt = %v, want %v", light.UpdatedAt, now)
		}
	})

	t.Run("loads occupancy oldest first", func(t *testing.T) {
		got, err := repo.LoadOccupancy(ctx)
		if err != nil {
			t.Fatalf("LoadOccupancy() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("LoadOccupancy() returned %d events, want 2", len(got))
		}
		if !got[0].ObservedAt.Before(got[1].ObservedAt) {
			t.Error("events are not ordered oldest first")
		}
		if !got[0].Occupied {
			t.Error("first event Occupied = false, want true")
		}
	})
}

func TestSQLiteRepository_SnapshotReplaces(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)

	first := []Device{{
		ID: "dev_1_1", NodeID: 1, EndpointID: 1, Kind: KindLight,
		Attributes: Attributes{AttrPower: false}, Available: true, UpdatedAt: now,
	}}
	if err := repo.SaveSnapshot(ctx, first, nil); err != nil {
		t.Fatalf("first SaveSnapshot() error = %v", err)
	}

	// Second snapshot has a different device; the first must vanish.
	second := []Device{{
		ID: "dev_2_1", NodeID: 2, EndpointID: 1, Kind: KindSensor,
		Attributes: Attributes{AttrHumidity: 40.0}, Available: true, UpdatedAt: now,
	}}
	if err := repo.SaveSnapshot(ctx, second, nil); err != nil {
		t.Fatalf("second SaveSnapshot() error = %v", err)
	}

	got, err := repo.LoadDevices(ctx)
	if err != nil {
		t.Fatalf("LoadDevices() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LoadDevices() returned %d devices, want 1", len(got))
	}
	if got[0].ID != "dev_2_1" {
		t.Errorf("surviving device = %q, want dev_2_1", got[0].ID)
	}
}

func TestSQLiteRepository_EmptySnapshot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seed := []Device{{
		ID: "dev_1_1", NodeID: 1, EndpointID: 1, Kind: KindLight,
		Attributes: Attributes{}, Available: true, UpdatedAt: time.Now().UTC(),
	}}
	if err := repo.SaveSnapshot(ctx, seed, nil); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	// An empty snapshot wipes the tables; a hub with no devices is valid.
	if err := repo.SaveSnapshot(ctx, nil, nil); err != nil {
		t.Fatalf("empty SaveSnapshot() error = %v", err)
	}

	got, err := repo.LoadDevices(ctx)
	if err != nil {
		t.Fatalf("LoadDevices() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadDevices() returned %d devices, want 0", len(got))
	}
}
