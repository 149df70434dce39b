package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store defaults and persistence backoff bounds.
const (
	// defaultOccupancyLimit caps the per-device occupancy history when no
	// limit is configured.
	defaultOccupancyLimit = 50

	// defaultFlushInterval is the base cadence of the persistence loop.
	defaultFlushInterval = 10 * time.Second

	// flushRetryInitial is the first delay after a failed flush.
	flushRetryInitial = 5 * time.Second

	// flushRetryMax caps the delay between flush retries.
	flushRetryMax = 60 * time.Second

	// shutdownFlushTimeout bounds the final flush during shutdown.
	shutdownFlushTimeout = 5 * time.Second
)

// entry pairs a device with its occupancy history under one lock.
// The map-level RWMutex in Store only guards the map structure; all
// reads and writes of the device itself go through the entry mutex, so
// updates to different devices never contend.
type entry struct {
	mu        sync.Mutex
	dev       *Device
	occupancy []OccupancyEvent // oldest first, bounded by occupancyLimit

	// lastActive is the newest occupied observation, kept outside the
	// history so it survives trimming and upserts.
	lastActive time.Time
}

// StoreConfig carries the tunables for a Store.
type StoreConfig struct {
	// OccupancyHistoryLimit is the maximum occupancy events retained per
	// device. Zero selects the default.
	OccupancyHistoryLimit int

	// FlushInterval is the base cadence of the persistence loop.
	// Zero selects the default.
	FlushInterval time.Duration
}

// Store is the in-memory device cache backing every read the hub
// serves. The cache is authoritative: reads never touch the database,
// and mutations only mark the store dirty for the background persister.
//
// All public methods are thread-safe.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*entry

	repo           Repository
	occupancyLimit int
	flushInterval  time.Duration

	dirty  atomic.Bool
	logger Logger
}

// NewStore creates a device store persisting through repo. A nil repo
// disables persistence: Load and Flush become no-ops and the cache
// runs on live state alone.
// Call Load before serving reads and Run to start the persister.
func NewStore(repo Repository, cfg StoreConfig) *Store {
	if cfg.OccupancyHistoryLimit <= 0 {
		cfg.OccupancyHistoryLimit = defaultOccupancyLimit
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	return &Store{
		devices:        make(map[string]*entry),
		repo:           repo,
		occupancyLimit: cfg.OccupancyHistoryLimit,
		flushInterval:  cfg.FlushInterval,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load populates the cache from the repository. It should be called
// once at startup, before Run. Devices and occupancy history load
// independently: a failing slice is logged and left empty, and the
// cache still serves everything else plus live state. The returned
// error reports which slices failed; the store is usable either way.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	devices, devErr := s.repo.LoadDevices(ctx)
	if devErr != nil {
		devErr = fmt.Errorf("loading devices: %w", devErr)
		s.logger.Warn("device load failed, starting with an empty cache", "error", devErr)
		devices = nil
	}

	events, occErr := s.repo.LoadOccupancy(ctx)
	if occErr != nil {
		occErr = fmt.Errorf("loading occupancy history: %w", occErr)
		s.logger.Warn("occupancy load failed, starting without history", "error", occErr)
		events = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = make(map[string]*entry, len(devices))
	for i := range devices {
		d := devices[i]
		s.devices[d.ID] = &entry{dev: d.DeepCopy()}
	}

	dropped := 0
	for _, ev := range events {
		e, ok := s.devices[ev.DeviceID]
		if !ok {
			// Occupancy rows can outlive their device between flushes.
			dropped++
			continue
		}
		e.occupancy = append(e.occupancy, ev)
		if ev.Occupied && ev.ObservedAt.After(e.lastActive) {
			e.lastActive = ev.ObservedAt
		}
	}

	for _, e := range s.devices {
		if len(e.occupancy) > s.occupancyLimit {
			e.occupancy = e.occupancy[len(e.occupancy)-s.occupancyLimit:]
		}
	}

	s.logger.Info("device cache loaded",
		"devices", len(devices),
		"occupancy_events", len(events)-dropped,
	)
	return errors.Join(devErr, occErr)
}

// Get retrieves a device by its canonical ID.
// Returns ErrNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (s *Store) Get(id string) (*Device, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev.DeepCopy(), nil
}

// List retrieves all devices ordered by node then endpoint.
// The returned devices are deep copies; callers can safely modify them.
func (s *Store) List() []Device {
	return s.filter(func(*Device) bool { return true })
}

// Lights retrieves all devices classified as lights.
func (s *Store) Lights() []Device {
	return s.filter(func(d *Device) bool { return d.IsLight() })
}

// Sensors retrieves all devices exposing sensor readings.
func (s *Store) Sensors() []Device {
	return s.filter(func(d *Device) bool { return d.IsSensor() })
}

// NodeDevices retrieves all devices belonging to a node, ordered by
// endpoint.
func (s *Store) NodeDevices(nodeID uint64) []Device {
	return s.filter(func(d *Device) bool { return d.NodeID == nodeID })
}

// Count returns the number of cached devices.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Exists reports whether a device with the given canonical ID is cached.
func (s *Store) Exists(id string) bool {
	return s.lookup(id) != nil
}

// Apply upserts a device into the cache. Re-applying an identical
// device is a no-op: the cache is not marked dirty and changed is
// false, so callers can suppress redundant fan-out.
//
// Occupancy history survives an upsert; Apply only replaces the device
// itself.
func (s *Store) Apply(d Device) (changed bool) {
	if d.ID == "" {
		d.ID = FormatID(d.NodeID, d.EndpointID)
	}
	if d.Kind == "" {
		d.Kind = KindOther
	}

	e := s.lookupOrCreate(d.ID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dev != nil &&
		e.dev.Kind == d.Kind &&
		e.dev.Available == d.Available &&
		attributesEqual(e.dev.Attributes, d.Attributes) {
		return false
	}

	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	e.dev = d.DeepCopy()

	s.markDirty()
	return true
}

// ApplyAttribute updates a single attribute on an existing device.
// Returns the updated device and whether the value actually changed.
// Returns ErrNotFound if the device is not cached.
func (s *Store) ApplyAttribute(id, key string, value any) (*Device, bool, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, false, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if current, ok := e.dev.Attributes[key]; ok && valueEqual(current, value) {
		return e.dev.DeepCopy(), false, nil
	}

	if e.dev.Attributes == nil {
		e.dev.Attributes = make(Attributes, 1)
	}
	e.dev.Attributes[key] = value
	e.dev.UpdatedAt = time.Now().UTC()

	s.markDirty()
	return e.dev.DeepCopy(), true, nil
}

// PromoteKind raises a device's kind when the observed kind is more
// specific than the cached one. A kind never demotes: a light that
// also reports occupancy stays a light. Returns the device and whether
// the kind changed, or ErrNotFound if the device is not cached.
func (s *Store) PromoteKind(id string, observed Kind) (*Device, bool, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, false, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	promoted := MoreSpecificKind(e.dev.Kind, observed)
	if promoted == e.dev.Kind {
		return e.dev.DeepCopy(), false, nil
	}

	e.dev.Kind = promoted
	e.dev.UpdatedAt = time.Now().UTC()

	s.markDirty()
	return e.dev.DeepCopy(), true, nil
}

// SetNodeAvailable flips the availability flag on every device of a
// node. Returns deep copies of the devices whose flag changed.
func (s *Store) SetNodeAvailable(nodeID uint64, available bool) []Device {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.devices))
	for _, e := range s.devices {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var changed []Device
	for _, e := range entries {
		e.mu.Lock()
		if e.dev != nil && e.dev.NodeID == nodeID && e.dev.Available != available {
			e.dev.Available = available
			e.dev.UpdatedAt = time.Now().UTC()
			changed = append(changed, *e.dev.DeepCopy())
		}
		e.mu.Unlock()
	}

	if len(changed) > 0 {
		s.markDirty()
	}
	return changed
}

// AppendOccupancy records an occupancy transition for a device,
// trimming the history to the configured limit (oldest dropped first).
// Returns ErrNotFound if the device is not cached.
func (s *Store) AppendOccupancy(ev OccupancyEvent) error {
	e := s.lookup(ev.DeviceID)
	if e == nil {
		return ErrNotFound
	}

	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now().UTC()
	}

	e.mu.Lock()
	e.occupancy = append(e.occupancy, ev)
	if len(e.occupancy) > s.occupancyLimit {
		e.occupancy = e.occupancy[len(e.occupancy)-s.occupancyLimit:]
	}
	if ev.Occupied && ev.ObservedAt.After(e.lastActive) {
		e.lastActive = ev.ObservedAt
	}
	e.mu.Unlock()

	s.markDirty()
	return nil
}

// LastActive returns when a device last reported occupied, and whether
// it ever has. Reads the cached timestamp, not the history, so the
// answer survives history trimming.
// Returns ErrNotFound if the device is not cached.
func (s *Store) LastActive(id string) (time.Time, error) {
	e := s.lookup(id)
	if e == nil {
		return time.Time{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive, nil
}

// History returns the occupancy history for a device, newest first.
// A limit of zero or less returns the full retained history.
// Returns ErrNotFound if the device is not cached.
func (s *Store) History(id string, limit int) ([]OccupancyEvent, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.occupancy)
	if limit > 0 && limit < n {
		n = limit
	}

	// Stored oldest first; returned newest first.
	out := make([]OccupancyEvent, 0, n)
	for i := len(e.occupancy) - 1; i >= len(e.occupancy)-n; i-- {
		out = append(out, e.occupancy[i])
	}
	return out, nil
}

// Remove deletes a device and its occupancy history from the cache.
// Returns the removed device, or ErrNotFound if it was not cached.
func (s *Store) Remove(id string) (*Device, error) {
	s.mu.Lock()
	e, ok := s.devices[id]
	if ok {
		delete(s.devices, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	removed := e.dev.DeepCopy()
	e.mu.Unlock()

	if removed == nil {
		// Entry existed but Apply never filled it in.
		return nil, ErrNotFound
	}

	s.markDirty()
	return removed, nil
}

// RemoveNode deletes every device belonging to a node.
// Returns deep copies of the removed devices.
func (s *Store) RemoveNode(nodeID uint64) []Device {
	s.mu.Lock()
	var victims []*entry
	for id, e := range s.devices {
		e.mu.Lock()
		match := e.dev != nil && e.dev.NodeID == nodeID
		e.mu.Unlock()
		if match {
			victims = append(victims, e)
			delete(s.devices, id)
		}
	}
	s.mu.Unlock()

	var removed []Device
	for _, e := range victims {
		e.mu.Lock()
		removed = append(removed, *e.dev.DeepCopy())
		e.mu.Unlock()
	}

	if len(removed) > 0 {
		s.markDirty()
	}
	return removed
}

// Run drives the background persistence loop until ctx is cancelled.
// Flush failures are logged and retried with exponential backoff; they
// are never surfaced to readers. A final flush runs during shutdown.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	var (
		failures int
		retryAt  time.Time
	)

	for {
		select {
		case <-ctx.Done():
			s.finalFlush()
			return

		case <-ticker.C:
			if !s.dirty.Load() {
				continue
			}
			if !retryAt.IsZero() && time.Now().Before(retryAt) {
				continue
			}

			if err := s.Flush(ctx); err != nil {
				failures++
				delay := flushBackoff(failures)
				retryAt = time.Now().Add(delay)
				s.logger.Error("device cache flush failed",
					"error", err,
					"attempt", failures,
					"retry_in", delay,
				)
				continue
			}

			if failures > 0 {
				s.logger.Info("device cache flush recovered", "after_attempts", failures)
			}
			failures = 0
			retryAt = time.Time{}
		}
	}
}

// Flush synchronously persists the current cache state if it is dirty.
// Safe to call concurrently with Run; used by tests and shutdown.
// A no-op when the store was built without a repository.
func (s *Store) Flush(ctx context.Context) error {
	if s.repo == nil || !s.dirty.Load() {
		return nil
	}

	// Clear first so changes landing mid-snapshot re-mark the store.
	s.dirty.Store(false)

	devices, events := s.snapshot()
	if err := s.repo.SaveSnapshot(ctx, devices, events); err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("persisting device cache: %w", err)
	}

	s.logger.Debug("device cache flushed",
		"devices", len(devices),
		"occupancy_events", len(events),
	)
	return nil
}

// finalFlush persists outstanding changes during shutdown with a
// bounded, independent context.
func (s *Store) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	if err := s.Flush(ctx); err != nil {
		s.logger.Error("final device cache flush failed", "error", err)
	}
}

// snapshot copies the full cache state for persistence.
func (s *Store) snapshot() ([]Device, []OccupancyEvent) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.devices))
	for _, e := range s.devices {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	devices := make([]Device, 0, len(entries))
	var events []OccupancyEvent
	for _, e := range entries {
		e.mu.Lock()
		if e.dev != nil {
			devices = append(devices, *e.dev.DeepCopy())
			events = append(events, e.occupancy...)
		}
		e.mu.Unlock()
	}

	sortDevices(devices)
	return devices, events
}

// lookup returns the entry for id, or nil. Entries appear in the map
// before Apply fills in the device; one still missing its device is
// treated as absent.
func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	e := s.devices[id]
	s.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	ready := e.dev != nil
	e.mu.Unlock()
	if !ready {
		return nil
	}
	return e
}

// lookupOrCreate returns the entry for id, inserting an empty one if
// absent.
func (s *Store) lookupOrCreate(id string) *entry {
	s.mu.RLock()
	e, ok := s.devices[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.devices[id]; ok {
		return e
	}
	e = &entry{}
	s.devices[id] = e
	return e
}

// filter returns deep copies of all devices matching keep, ordered by
// node then endpoint.
func (s *Store) filter(keep func(*Device) bool) []Device {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.devices))
	for _, e := range s.devices {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.dev != nil && keep(e.dev) {
			devices = append(devices, *e.dev.DeepCopy())
		}
		e.mu.Unlock()
	}

	sortDevices(devices)
	return devices
}

// markDirty flags the store for the next persistence pass.
func (s *Store) markDirty() {
	s.dirty.Store(true)
}

// sortDevices orders devices by node then endpoint for stable output.
func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].NodeID != devices[j].NodeID {
			return devices[i].NodeID < devices[j].NodeID
		}
		return devices[i].EndpointID < devices[j].EndpointID
	})
}

// flushBackoff returns the retry delay after the given failure count,
// doubling from flushRetryInitial up to flushRetryMax.
func flushBackoff(failures int) time.Duration {
	delay := flushRetryInitial
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= flushRetryMax {
			return flushRetryMax
		}
	}
	return delay
}

// attributesEqual reports whether two attribute maps hold the same
// values. Numeric values compare by magnitude so an int written by the
// bridge matches the float64 the same value decodes to after a
// restart.
func attributesEqual(a, b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

// valueEqual compares two attribute values.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}

	if af, aok := numericValue(a); aok {
		bf, bok := numericValue(b)
		return bok && af == bf
	}

	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	default:
		// Composite values never survive normalisation; treat as changed.
		return false
	}
}

// numericValue coerces any numeric type to float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
