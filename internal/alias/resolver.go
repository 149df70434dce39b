package alias

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hearthwire/matterhub/internal/device"
)

// Logger defines the logging interface used by the Resolver.
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

// MaxNameLength is the longest accepted alias, in runes.
const MaxNameLength = 64

// Persistence cadence and backoff bounds.
const (
	defaultFlushInterval = 10 * time.Second
	flushRetryInitial    = 5 * time.Second
	flushRetryMax        = 60 * time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// DeviceIndex reports whether a canonical device ID is currently
// cached. Implemented by the device store; kept narrow so tests can
// stub it with a map.
type DeviceIndex interface {
	Exists(id string) bool
}

// record is one alias binding. Aliases per device form an ordered
// sequence; seq preserves assignment order across flush and reload.
type record struct {
	alias     string
	deviceID  string
	createdAt time.Time
	seq       int64
}

// ResolverConfig carries the tunables for a Resolver.
type ResolverConfig struct {
	// FlushInterval is the base cadence of the persistence loop.
	// Zero selects the default.
	FlushInterval time.Duration
}

// Resolver maps human-chosen names to canonical device identifiers.
//
// A single table-wide RWMutex guards the namespace: uniqueness is a
// global invariant, so finer-grained locking would buy nothing.
// All public methods are thread-safe.
type Resolver struct {
	mu       sync.RWMutex
	byAlias  map[string]*record
	byDevice map[string][]*record
	nextSeq  int64

	repo          Repository
	devices       DeviceIndex
	flushInterval time.Duration

	dirty  atomic.Bool
	logger Logger
}

// NewResolver creates an alias resolver persisting through repo and
// checking device existence against devices. A nil repo disables
// persistence: Load and Flush become no-ops.
// Call Load before serving lookups and Run to start the persister.
func NewResolver(repo Repository, devices DeviceIndex, cfg ResolverConfig) *Resolver {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	return &Resolver{
		byAlias:       make(map[string]*record),
		byDevice:      make(map[string][]*record),
		repo:          repo,
		devices:       devices,
		flushInterval: cfg.FlushInterval,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Load populates the alias table from the repository. A load failure
// leaves the table empty and usable; the caller logs the error and
// carries on.
//
// Dangling aliases are kept: their devices may simply not have synced
// from the backend yet, and a binding must never be lost to startup
// ordering.
func (r *Resolver) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	records, err := r.repo.LoadAliases(ctx)
	if err != nil {
		return fmt.Errorf("loading aliases: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byAlias = make(map[string]*record, len(records))
	r.byDevice = make(map[string][]*record)
	r.nextSeq = 0
	for _, rec := range records {
		entry := &record{
			alias:     rec.Alias,
			deviceID:  rec.DeviceID,
			createdAt: rec.CreatedAt,
			seq:       r.nextSeq,
		}
		r.nextSeq++
		r.byAlias[entry.alias] = entry
		r.byDevice[entry.deviceID] = append(r.byDevice[entry.deviceID], entry)
	}

	r.logger.Info("alias table loaded", "aliases", len(records))
	return nil
}

// Resolve maps any client-supplied identifier to a canonical device
// ID. Canonical IDs of cached devices win outright; otherwise the
// alias table is consulted with an exact, case-sensitive match.
// Returns ErrNotFound when nothing matches, including when an alias
// dangles on a removed device.
func (r *Resolver) Resolve(ref string) (string, error) {
	if r.devices.Exists(ref) {
		return ref, nil
	}

	r.mu.RLock()
	rec, ok := r.byAlias[ref]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	if !r.devices.Exists(rec.deviceID) {
		// Weak reference: the device behind this alias is gone.
		return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	return rec.deviceID, nil
}

// Assign binds name to the device identified by ref (itself a
// canonical ID or an existing alias). The check-and-set is atomic:
// of two concurrent assignments of the same new name, exactly one
// succeeds and the other observes ErrConflict.
//
// Re-assigning a name to the device it already names is an idempotent
// success. Returns the canonical ID the name is bound to.
func (r *Resolver) Assign(ref, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	canonicalID, err := r.Resolve(ref)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.byAlias[name]; ok {
		if rec.deviceID == canonicalID {
			return canonicalID, nil
		}
		return "", fmt.Errorf("%w: %q", ErrConflict, name)
	}

	rec := &record{
		alias:     name,
		deviceID:  canonicalID,
		createdAt: time.Now().UTC(),
		seq:       r.nextSeq,
	}
	r.nextSeq++
	r.byAlias[name] = rec
	r.byDevice[canonicalID] = append(r.byDevice[canonicalID], rec)

	r.markDirty()
	r.logger.Info("alias assigned", "alias", name, "device_id", canonicalID)
	return canonicalID, nil
}

// Free removes an alias binding, making the name assignable elsewhere.
// Returns the canonical ID the name was bound to, or ErrNotFound.
func (r *Resolver) Free(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byAlias[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	delete(r.byAlias, name)
	r.byDevice[rec.deviceID] = removeRecord(r.byDevice[rec.deviceID], rec)
	if len(r.byDevice[rec.deviceID]) == 0 {
		delete(r.byDevice, rec.deviceID)
	}

	r.markDirty()
	r.logger.Info("alias freed", "alias", name, "device_id", rec.deviceID)
	return rec.deviceID, nil
}

// AliasesFor returns the names bound to a device, in assignment order.
// A device with no aliases yields an empty slice.
func (r *Resolver) AliasesFor(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.byDevice[deviceID]
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.alias
	}
	return names
}

// Count returns the number of alias bindings.
func (r *Resolver) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAlias)
}

// Run drives the background persistence loop until ctx is cancelled.
// Flush failures are logged and retried with exponential backoff; they
// are never surfaced to callers. A final flush runs during shutdown.
func (r *Resolver) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	var (
		failures int
		retryAt  time.Time
	)

	for {
		select {
		case <-ctx.Done():
			r.finalFlush()
			return

		case <-ticker.C:
			if !r.dirty.Load() {
				continue
			}
			if !retryAt.IsZero() && time.Now().Before(retryAt) {
				continue
			}

			if err := r.Flush(ctx); err != nil {
				failures++
				delay := flushBackoff(failures)
				retryAt = time.Now().Add(delay)
				r.logger.Error("alias table flush failed",
					"error", err,
					"attempt", failures,
					"retry_in", delay,
				)
				continue
			}

			if failures > 0 {
				r.logger.Info("alias table flush recovered", "after_attempts", failures)
			}
			failures = 0
			retryAt = time.Time{}
		}
	}
}

// Flush synchronously persists the alias table if it is dirty.
// Safe to call concurrently with Run; used by tests and shutdown.
// A no-op when the resolver was built without a repository.
func (r *Resolver) Flush(ctx context.Context) error {
	if r.repo == nil || !r.dirty.Load() {
		return nil
	}

	// Clear first so changes landing mid-snapshot re-mark the table.
	r.dirty.Store(false)

	records := r.snapshot()
	if err := r.repo.SaveAliases(ctx, records); err != nil {
		r.dirty.Store(true)
		return fmt.Errorf("persisting alias table: %w", err)
	}

	r.logger.Debug("alias table flushed", "aliases", len(records))
	return nil
}

// finalFlush persists outstanding changes during shutdown with a
// bounded, independent context.
func (r *Resolver) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	if err := r.Flush(ctx); err != nil {
		r.logger.Error("final alias table flush failed", "error", err)
	}
}

// snapshot copies the alias table in global assignment order.
func (r *Resolver) snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]*record, 0, len(r.byAlias))
	for _, rec := range r.byAlias {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = Record{
			Alias:     rec.alias,
			DeviceID:  rec.deviceID,
			CreatedAt: rec.createdAt,
		}
	}
	return out
}

// markDirty flags the table for the next persistence pass.
func (r *Resolver) markDirty() {
	r.dirty.Store(true)
}

// ValidateName checks an alias against the naming rules: non-empty,
// at most MaxNameLength runes, and not shaped like a canonical device
// ID (that namespace is reserved for the cache).
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidAlias)
	case utf8.RuneCountInString(name) > MaxNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidAlias, MaxNameLength)
	case device.IsCanonicalID(name):
		return fmt.Errorf("%w: %q is reserved for canonical identifiers", ErrInvalidAlias, name)
	}
	return nil
}

// removeRecord filters one record out of a slice, preserving order.
func removeRecord(records []*record, victim *record) []*record {
	out := records[:0]
	for _, rec := range records {
		if rec != victim {
			out = append(out, rec)
		}
	}
	return out
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
