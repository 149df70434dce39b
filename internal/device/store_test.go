package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository implements Repository for testing without a database.
type MockRepository struct {
	mu sync.Mutex

	devices []Device
	events  []OccupancyEvent

	loadDevicesErr   error
	loadOccupancyErr error
	saveErr          error

	saveCalls    int
	savedDevices []Device
	savedEvents  []OccupancyEvent
}

func (m *MockRepository) LoadDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadDevicesErr != nil {
		return nil, m.loadDevicesErr
	}
	return append([]Device(nil), m.devices...), nil
}

func (m *MockRepository) LoadOccupancy(_ context.Context) ([]OccupancyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadOccupancyErr != nil {
		return nil, m.loadOccupancyErr
	}
	return append([]OccupancyEvent(nil), m.events...), nil
}

func (m *MockRepository) SaveSnapshot(_ context.Context, devices []Device, events []OccupancyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saveCalls++
	m.savedDevices = append([]Device(nil), devices...)
	m.savedEvents = append([]OccupancyEvent(nil), events...)
	return nil
}

func (m *MockRepository) saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// testLight builds a light device for tests.
func testLight(nodeID uint64, endpointID uint16) Device {
	return Device{
		ID:         FormatID(nodeID, endpointID),
		NodeID:     nodeID,
		EndpointID: endpointID,
		Kind:       KindLight,
		Attributes: Attributes{
			AttrPower:      true,
			AttrBrightness: 0.5,
		},
		Available: true,
	}
}

// testSensor builds an occupancy sensor device for tests.
func testSensor(nodeID uint64, endpointID uint16) Device {
	return Device{
		ID:         FormatID(nodeID, endpointID),
		NodeID:     nodeID,
		EndpointID: endpointID,
		Kind:       KindSensor,
		Attributes: Attributes{
			AttrOccupied: false,
		},
		Available: true,
	}
}

func TestStoreApply(t *testing.T) {
	t.Run("new device is a change", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		if changed := s.Apply(testLight(1, 1)); !changed {
			t.Error("Apply() changed = false, want true for new device")
		}
		if got := s.Count(); got != 1 {
			t.Errorf("Count() = %d, want 1", got)
		}
	})

	t.Run("identical reapply is a no-op", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		s.Apply(testLight(1, 1))
		s.dirty.Store(false)

		if changed := s.Apply(testLight(1, 1)); changed {
			t.Error("Apply() changed = true, want false for identical device")
		}
		if s.dirty.Load() {
			t.Error("identical reapply marked the store dirty")
		}
	})

	t.Run("attribute change is detected", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		s.Apply(testLight(1, 1))

		updated := testLight(1, 1)
		updated.Attributes[AttrBrightness] = 0.9
		if changed := s.Apply(updated); !changed {
			t.Error("Apply() changed = false, want true after brightness change")
		}

		got, err := s.Get("dev_1_1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Attributes[AttrBrightness] != 0.9 {
			t.Errorf("brightness = %v, want 0.9", got.Attributes[AttrBrightness])
		}
	})

	t.Run("numeric values compare across types", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		d := testLight(1, 1)
		d.Attributes[AttrColorTemp] = 2700 // int, as the bridge writes it
		s.Apply(d)

		reloaded := testLight(1, 1)
		reloaded.Attributes[AttrColorTemp] = float64(2700) // as JSON decodes it
		if changed := s.Apply(reloaded); changed {
			t.Error("Apply() changed = true, want false for numerically equal attributes")
		}
	})

	t.Run("derives ID and kind when missing", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		s.Apply(Device{NodeID: 7, EndpointID: 2, Attributes: Attributes{}})

		got, err := s.Get("dev_7_2")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Kind != KindOther {
			t.Errorf("Kind = %q, want %q", got.Kind, KindOther)
		}
	})

	t.Run("upsert preserves occupancy history", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		s.Apply(testSensor(2, 1))
		if err := s.AppendOccupancy(OccupancyEvent{DeviceID: "dev_2_1", Occupied: true}); err != nil {
			t.Fatalf("AppendOccupancy() error = %v", err)
		}

		updated := testSensor(2, 1)
		updated.Attributes[AttrOccupied] = true
		s.Apply(updated)

		history, err := s.History("dev_2_1", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 1 {
			t.Errorf("history length = %d, want 1 after upsert", len(history))
		}
	})
}

func TestStoreApplyAttribute(t *testing.T) {
	t.Run("updates a single attribute", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testLight(1, 1))

		dev, changed, err := s.ApplyAttribute("dev_1_1", AttrBrightness, 0.25)
		if err != nil {
			t.Fatalf("ApplyAttribute() error = %v", err)
		}
		if !changed {
			t.Error("ApplyAttribute() changed = false, want true")
		}
		if dev.Attributes[AttrBrightness] != 0.25 {
			t.Errorf("brightness = %v, want 0.25", dev.Attributes[AttrBrightness])
		}
		if dev.Attributes[AttrPower] != true {
			t.Error("unrelated attribute was lost")
		}
	})

	t.Run("same value is a no-op", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testLight(1, 1))
		s.dirty.Store(false)

		_, changed, err := s.ApplyAttribute("dev_1_1", AttrPower, true)
		if err != nil {
			t.Fatalf("ApplyAttribute() error = %v", err)
		}
		if changed {
			t.Error("ApplyAttribute() changed = true, want false for same value")
		}
		if s.dirty.Load() {
			t.Error("no-op update marked the store dirty")
		}
	})

	t.Run("unknown device returns ErrNotFound", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		_, _, err := s.ApplyAttribute("dev_9_9", AttrPower, true)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ApplyAttribute() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStorePromoteKind(t *testing.T) {
	t.Run("raises to a more specific kind", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(Device{NodeID: 1, EndpointID: 1, Attributes: Attributes{}})

		dev, changed, err := s.PromoteKind("dev_1_1", KindLight)
		if err != nil {
			t.Fatalf("PromoteKind() error = %v", err)
		}
		if !changed {
			t.Error("PromoteKind() changed = false, want true")
		}
		if dev.Kind != KindLight {
			t.Errorf("Kind = %q, want %q", dev.Kind, KindLight)
		}
	})

	t.Run("never demotes", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testLight(1, 1))
		s.dirty.Store(false)

		dev, changed, err := s.PromoteKind("dev_1_1", KindOccupancy)
		if err != nil {
			t.Fatalf("PromoteKind() error = %v", err)
		}
		if changed {
			t.Error("PromoteKind() changed = true, want false for a less specific kind")
		}
		if dev.Kind != KindLight {
			t.Errorf("Kind = %q, want %q", dev.Kind, KindLight)
		}
		if s.dirty.Load() {
			t.Error("no-op promotion marked the store dirty")
		}
	})

	t.Run("occupancy outranks sensor", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testSensor(2, 1))

		dev, changed, err := s.PromoteKind("dev_2_1", KindOccupancy)
		if err != nil {
			t.Fatalf("PromoteKind() error = %v", err)
		}
		if !changed {
			t.Error("PromoteKind() changed = false, want true")
		}
		if dev.Kind != KindOccupancy {
			t.Errorf("Kind = %q, want %q", dev.Kind, KindOccupancy)
		}
	})

	t.Run("unknown device returns ErrNotFound", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		if _, _, err := s.PromoteKind("dev_9_9", KindLight); !errors.Is(err, ErrNotFound) {
			t.Errorf("PromoteKind() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStoreGet(t *testing.T) {
	t.Run("returns an isolated copy", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testLight(1, 1))

		got, err := s.Get("dev_1_1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		// Mutating the copy must not leak into the cache.
		got.Attributes[AttrPower] = false

		again, err := s.Get("dev_1_1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if again.Attributes[AttrPower] != true {
			t.Error("mutation of returned device leaked into the cache")
		}
	})

	t.Run("unknown device returns ErrNotFound", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		if _, err := s.Get("dev_1_1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStoreListFilters(t *testing.T) {
	s := NewStore(&MockRepository{}, StoreConfig{})
	s.Apply(testLight(2, 1))
	s.Apply(testSensor(1, 1))
	s.Apply(testLight(1, 8))
	s.Apply(testSensor(10, 1))

	t.Run("list orders by node then endpoint", func(t *testing.T) {
		devices := s.List()
		if len(devices) != 4 {
			t.Fatalf("List() returned %d devices, want 4", len(devices))
		}
		wantOrder := []string{"dev_1_1", "dev_1_8", "dev_2_1", "dev_10_1"}
		for i, want := range wantOrder {
			if devices[i].ID != want {
				t.Errorf("devices[%d].ID = %q, want %q", i, devices[i].ID, want)
			}
		}
	})

	t.Run("lights filters by kind", func(t *testing.T) {
		lights := s.Lights()
		if len(lights) != 2 {
			t.Fatalf("Lights() returned %d devices, want 2", len(lights))
		}
		for _, d := range lights {
			if d.Kind != KindLight {
				t.Errorf("Lights() returned %q of kind %q", d.ID, d.Kind)
			}
		}
	})

	t.Run("sensors filters by readings", func(t *testing.T) {
		sensors := s.Sensors()
		if len(sensors) != 2 {
			t.Fatalf("Sensors() returned %d devices, want 2", len(sensors))
		}
	})
}

func TestStoreOccupancy(t *testing.T) {
	t.Run("history is newest first", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testSensor(1, 1))

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			err := s.AppendOccupancy(OccupancyEvent{
				DeviceID:   "dev_1_1",
				Occupied:   i%2 == 0,
				ObservedAt: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("AppendOccupancy() error = %v", err)
			}
		}

		history, err := s.History("dev_1_1", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("history length = %d, want 3", len(history))
		}
		if !history[0].ObservedAt.After(history[1].ObservedAt) {
			t.Error("history is not newest first")
		}
	})

	t.Run("history is bounded and drops oldest", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{OccupancyHistoryLimit: 5})
		s.Apply(testSensor(1, 1))

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 12; i++ {
			err := s.AppendOccupancy(OccupancyEvent{
				DeviceID:   "dev_1_1",
				Occupied:   true,
				ObservedAt: base.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Fatalf("AppendOccupancy() error = %v", err)
			}
		}

		history, err := s.History("dev_1_1", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 5 {
			t.Fatalf("history length = %d, want 5", len(history))
		}
		// Newest event (base+11s) must survive; oldest retained is base+7s.
		if got := history[0].ObservedAt; !got.Equal(base.Add(11 * time.Second)) {
			t.Errorf("newest event at %v, want %v", got, base.Add(11*time.Second))
		}
		if got := history[4].ObservedAt; !got.Equal(base.Add(7 * time.Second)) {
			t.Errorf("oldest retained event at %v, want %v", got, base.Add(7*time.Second))
		}
	})

	t.Run("limit truncates from the newest end", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testSensor(1, 1))

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			if err := s.AppendOccupancy(OccupancyEvent{
				DeviceID:   "dev_1_1",
				Occupied:   true,
				ObservedAt: base.Add(time.Duration(i) * time.Second),
			}); err != nil {
				t.Fatalf("AppendOccupancy() error = %v", err)
			}
		}

		history, err := s.History("dev_1_1", 2)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("history length = %d, want 2", len(history))
		}
		if !history[0].ObservedAt.Equal(base.Add(3 * time.Second)) {
			t.Errorf("limited history does not start at the newest event")
		}
	})

	t.Run("unknown device returns ErrNotFound", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		err := s.AppendOccupancy(OccupancyEvent{DeviceID: "dev_9_9", Occupied: true})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("AppendOccupancy() error = %v, want ErrNotFound", err)
		}

		if _, err := s.History("dev_9_9", 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("History() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStoreLastActive(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("tracks the newest occupied observation", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testSensor(1, 1))

		ts, err := s.LastActive("dev_1_1")
		if err != nil {
			t.Fatalf("LastActive() error = %v", err)
		}
		if !ts.IsZero() {
			t.Errorf("LastActive() = %v before any occupied event, want zero", ts)
		}

		events := []OccupancyEvent{
			{DeviceID: "dev_1_1", Occupied: true, ObservedAt: base},
			{DeviceID: "dev_1_1", Occupied: false, ObservedAt: base.Add(time.Minute)},
		}
		for _, ev := range events {
			if err := s.AppendOccupancy(ev); err != nil {
				t.Fatalf("AppendOccupancy() error = %v", err)
			}
		}

		ts, err = s.LastActive("dev_1_1")
		if err != nil {
			t.Fatalf("LastActive() error = %v", err)
		}
		if !ts.Equal(base) {
			t.Errorf("LastActive() = %v, want %v", ts, base)
		}
	})

	t.Run("survives history trimming and upserts", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{OccupancyHistoryLimit: 2})
		s.Apply(testSensor(1, 1))

		if err := s.AppendOccupancy(OccupancyEvent{
			DeviceID: "dev_1_1", Occupied: true, ObservedAt: base,
		}); err != nil {
			t.Fatalf("AppendOccupancy() error = %v", err)
		}
		// Enough clear events to push the occupied one out of history.
		for i := 1; i <= 3; i++ {
			if err := s.AppendOccupancy(OccupancyEvent{
				DeviceID:   "dev_1_1",
				Occupied:   false,
				ObservedAt: base.Add(time.Duration(i) * time.Minute),
			}); err != nil {
				t.Fatalf("AppendOccupancy() error = %v", err)
			}
		}

		updated := testSensor(1, 1)
		updated.Attributes[AttrOccupied] = true
		s.Apply(updated)

		ts, err := s.LastActive("dev_1_1")
		if err != nil {
			t.Fatalf("LastActive() error = %v", err)
		}
		if !ts.Equal(base) {
			t.Errorf("LastActive() = %v, want %v", ts, base)
		}
	})

	t.Run("restored from persisted history", func(t *testing.T) {
		repo := &MockRepository{
			devices: []Device{testSensor(1, 1)},
			events: []OccupancyEvent{
				{DeviceID: "dev_1_1", Occupied: true, ObservedAt: base},
				{DeviceID: "dev_1_1", Occupied: false, ObservedAt: base.Add(time.Minute)},
			},
		}
		s := NewStore(repo, StoreConfig{})

		if err := s.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		ts, err := s.LastActive("dev_1_1")
		if err != nil {
			t.Fatalf("LastActive() error = %v", err)
		}
		if !ts.Equal(base) {
			t.Errorf("LastActive() = %v, want %v", ts, base)
		}
	})

	t.Run("unknown device returns ErrNotFound", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		if _, err := s.LastActive("dev_9_9"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LastActive() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStoreSetNodeAvailable(t *testing.T) {
	s := NewStore(&MockRepository{}, StoreConfig{})
	s.Apply(testLight(1, 1))
	s.Apply(testSensor(1, 2))
	s.Apply(testLight(2, 1))

	changed := s.SetNodeAvailable(1, false)
	if len(changed) != 2 {
		t.Fatalf("SetNodeAvailable() changed %d devices, want 2", len(changed))
	}

	// Re-applying the same availability is a no-op.
	if again := s.SetNodeAvailable(1, false); len(again) != 0 {
		t.Errorf("repeat SetNodeAvailable() changed %d devices, want 0", len(again))
	}

	other, err := s.Get("dev_2_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !other.Available {
		t.Error("availability change leaked to another node")
	}
}

func TestStoreRemove(t *testing.T) {
	t.Run("removes device and history", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testSensor(1, 1))

		removed, err := s.Remove("dev_1_1")
		if err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if removed.ID != "dev_1_1" {
			t.Errorf("Remove() returned %q, want dev_1_1", removed.ID)
		}

		if _, err := s.Get("dev_1_1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after remove error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unknown device returns ErrNotFound", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})

		if _, err := s.Remove("dev_1_1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Remove() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("remove node clears all endpoints", func(t *testing.T) {
		s := NewStore(&MockRepository{}, StoreConfig{})
		s.Apply(testLight(3, 1))
		s.Apply(testSensor(3, 2))
		s.Apply(testLight(4, 1))

		removed := s.RemoveNode(3)
		if len(removed) != 2 {
			t.Fatalf("RemoveNode() removed %d devices, want 2", len(removed))
		}
		if got := s.Count(); got != 1 {
			t.Errorf("Count() = %d, want 1", got)
		}
	})
}

func TestStoreLoad(t *testing.T) {
	t.Run("populates cache from repository", func(t *testing.T) {
		repo := &MockRepository{
			devices: []Device{testLight(1, 1), testSensor(2, 1)},
			events: []OccupancyEvent{
				{DeviceID: "dev_2_1", Occupied: true, ObservedAt: time.Now().UTC()},
			},
		}
		s := NewStore(repo, StoreConfig{})

		if err := s.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if got := s.Count(); got != 2 {
			t.Errorf("Count() = %d, want 2", got)
		}
		history, err := s.History("dev_2_1", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 1 {
			t.Errorf("history length = %d, want 1", len(history))
		}
	})

	t.Run("drops occupancy for unknown devices", func(t *testing.T) {
		repo := &MockRepository{
			devices: []Device{testLight(1, 1)},
			events: []OccupancyEvent{
				{DeviceID: "dev_9_9", Occupied: true, ObservedAt: time.Now().UTC()},
			},
		}
		s := NewStore(repo, StoreConfig{})

		if err := s.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := s.Count(); got != 1 {
			t.Errorf("Count() = %d, want 1", got)
		}
	})

	t.Run("load failure leaves store empty and usable", func(t *testing.T) {
		repo := &MockRepository{loadDevicesErr: errors.New("disk gone")}
		s := NewStore(repo, StoreConfig{})

		if err := s.Load(context.Background()); err == nil {
			t.Fatal("Load() error = nil, want error")
		}

		// The store still accepts updates after a failed load.
		if changed := s.Apply(testLight(1, 1)); !changed {
			t.Error("Apply() after failed load did not register")
		}
	})

	t.Run("occupancy failure keeps loaded devices", func(t *testing.T) {
		repo := &MockRepository{
			devices:          []Device{testLight(1, 1)},
			loadOccupancyErr: errors.New("table corrupt"),
		}
		s := NewStore(repo, StoreConfig{})

		if err := s.Load(context.Background()); err == nil {
			t.Fatal("Load() error = nil, want error for the failed slice")
		}

		// The healthy device slice survives the occupancy failure.
		if got := s.Count(); got != 1 {
			t.Errorf("Count() = %d, want 1", got)
		}
		history, err := s.History("dev_1_1", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 0 {
			t.Errorf("history length = %d, want 0", len(history))
		}
	})

	t.Run("nil repository loads nothing and accepts state", func(t *testing.T) {
		s := NewStore(nil, StoreConfig{})

		if err := s.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v, want nil without a repository", err)
		}
		if changed := s.Apply(testLight(1, 1)); !changed {
			t.Error("Apply() without a repository did not register")
		}
		if err := s.Flush(context.Background()); err != nil {
			t.Errorf("Flush() error = %v, want nil without a repository", err)
		}
	})
}

func TestStoreUnfilledEntryIsAbsent(t *testing.T) {
	s := NewStore(&MockRepository{}, StoreConfig{})

	// An entry whose device has not been applied yet must stay
	// invisible to every reader.
	s.lookupOrCreate("dev_1_1")

	if s.Exists("dev_1_1") {
		t.Error("Exists() = true for an unfilled entry")
	}
	if _, err := s.Get("dev_1_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if got := len(s.List()); got != 0 {
		t.Errorf("List() returned %d devices, want 0", got)
	}
	if got := len(s.Lights()); got != 0 {
		t.Errorf("Lights() returned %d devices, want 0", got)
	}
	if got := len(s.NodeDevices(1)); got != 0 {
		t.Errorf("NodeDevices() returned %d devices, want 0", got)
	}
	if _, err := s.Remove("dev_1_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}

	// Apply fills the slot and the device becomes visible.
	if changed := s.Apply(testLight(1, 1)); !changed {
		t.Fatal("Apply() changed = false, want true")
	}
	if _, err := s.Get("dev_1_1"); err != nil {
		t.Errorf("Get() after Apply error = %v", err)
	}
	if got := len(s.Lights()); got != 1 {
		t.Errorf("Lights() returned %d devices, want 1", got)
	}
}

func TestStoreFlush(t *testing.T) {
	t.Run("persists dirty state", func(t *testing.T) {
		repo := &MockRepository{}
		s := NewStore(repo, StoreConfig{})

		s.Apply(testLight(1, 1))
		s.Apply(testSensor(2, 1))
		if err := s.AppendOccupancy(OccupancyEvent{DeviceID: "dev_2_1", Occupied: true}); err != nil {
			t.Fatalf("AppendOccupancy() error = %v", err)
		}

		if err := s.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}

		if repo.saves() != 1 {
			t.Errorf("save calls = %d, want 1", repo.saves())
		}
		if len(repo.savedDevices) != 2 {
			t.Errorf("saved %d devices, want 2", len(repo.savedDevices))
		}
		if len(repo.savedEvents) != 1 {
			t.Errorf("saved %d occupancy events, want 1", len(repo.savedEvents))
		}
	})

	t.Run("clean store skips the write", func(t *testing.T) {
		repo := &MockRepository{}
		s := NewStore(repo, StoreConfig{})

		if err := s.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if repo.saves() != 0 {
			t.Errorf("save calls = %d, want 0 for clean store", repo.saves())
		}
	})

	t.Run("failed flush keeps the store dirty", func(t *testing.T) {
		repo := &MockRepository{saveErr: errors.New("disk full")}
		s := NewStore(repo, StoreConfig{})
		s.Apply(testLight(1, 1))

		if err := s.Flush(context.Background()); err == nil {
			t.Fatal("Flush() error = nil, want error")
		}
		if !s.dirty.Load() {
			t.Error("store no longer dirty after failed flush")
		}

		// Once the disk recovers, the retry persists everything.
		repo.mu.Lock()
		repo.saveErr = nil
		repo.mu.Unlock()

		if err := s.Flush(context.Background()); err != nil {
			t.Fatalf("retry Flush() error = %v", err)
		}
		if repo.saves() != 1 {
			t.Errorf("save calls = %d, want 1 after recovery", repo.saves())
		}
	})
}

func TestStoreRun(t *testing.T) {
	repo := &MockRepository{}
	s := NewStore(repo, StoreConfig{FlushInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Apply(testLight(1, 1))

	deadline := time.After(2 * time.Second)
	for repo.saves() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("persister never flushed the dirty store")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}

func TestFlushBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second},
		{9, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := flushBackoff(tt.failures); got != tt.want {
			t.Errorf("flushBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}
