package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/matter"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventSource is the slice of the Matter client the subscriber consumes.
type EventSource interface {
	StartListening(ctx context.Context) ([]matter.NodeState, error)
	SetOnEvent(callback func(matter.Event))
	SetOnSync(callback func([]matter.NodeState))
}

// Observer is notified after the cache has accepted a change. Callbacks
// run on the subscriber's single event goroutine and receive isolated
// copies, so implementations may retain them but must not block for long.
type Observer interface {
	// DeviceChanged fires when an existing device's state changed.
	DeviceChanged(dev device.Device)

	// DeviceAdded fires when a device appears in the cache for the
	// first time.
	DeviceAdded(dev device.Device)

	// DeviceRemoved fires after a device is dropped from the cache.
	DeviceRemoved(dev device.Device)
}

// NodeBinder receives newly commissioned nodes once their devices are in
// the cache, so name bindings can resolve the canonical IDs.
type NodeBinder interface {
	HandleNodeAdded(nodeID uint64, devices []device.Device)
}

// Subscriber is the single consumer of backend events. It normalises
// attribute reports, applies them to the cache, and fans accepted
// changes out to the registered observers.
//
// All event handling runs on the Matter client's dispatch goroutine, so
// per-endpoint update ordering is preserved end to end.
type Subscriber struct {
	source EventSource
	store  *device.Store

	mu        sync.RWMutex
	observers []Observer
	binder    NodeBinder

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSubscriber creates a subscriber over the given event source and
// device cache.
func NewSubscriber(source EventSource, store *device.Store) *Subscriber {
	return &Subscriber{
		source: source,
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for this subscriber.
func (s *Subscriber) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	defer s.loggerMu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

func (s *Subscriber) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// AddObserver registers an observer for device changes. Register all
// observers before Start; additions are safe afterwards but miss events
// already delivered.
func (s *Subscriber) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// SetNodeBinder registers the handler for newly commissioned nodes.
func (s *Subscriber) SetNodeBinder(b NodeBinder) {
	s.mu.Lock()
	s.binder = b
	s.mu.Unlock()
}

// Start wires the event callbacks and performs the initial sync. The
// node dump is replayed through the same apply path as live events, so
// the cache converges regardless of which arrives first.
//
// Returns an error if the initial subscription fails; the subscriber
// stays wired and recovers on the client's next reconnect sync.
func (s *Subscriber) Start(ctx context.Context) error {
	s.source.SetOnEvent(s.handleEvent)
	s.source.SetOnSync(s.handleSync)

	nodes, err := s.source.StartListening(ctx)
	if err != nil {
		return fmt.Errorf("bridge: initial sync: %w", err)
	}

	s.handleSync(nodes)
	return nil
}

// handleEvent routes a single backend event.
func (s *Subscriber) handleEvent(ev matter.Event) {
	switch ev.Name {
	case matter.EventAttributeUpdated:
		update, err := ev.AttributeUpdate()
		if err != nil {
			s.log().Warn("malformed attribute update", "error", err)
			return
		}
		s.applyUpdate(update)

	case matter.EventNodeAdded:
		node, err := ev.Node()
		if err != nil {
			s.log().Warn("malformed node state", "event", ev.Name, "error", err)
			return
		}
		s.applyNode(node, true)

	case matter.EventNodeUpdated:
		node, err := ev.Node()
		if err != nil {
			s.log().Warn("malformed node state", "event", ev.Name, "error", err)
			return
		}
		s.applyNode(node, false)

	case matter.EventNodeRemoved:
		nodeID, err := ev.NodeID()
		if err != nil {
			s.log().Warn("malformed node removal", "error", err)
			return
		}
		s.removeNode(nodeID)

	case matter.EventServerShutdown:
		s.log().Info("backend announced shutdown")

	default:
		s.log().Debug("ignoring event", "event", ev.Name)
	}
}

// handleSync reconciles the cache against a full node dump: dump nodes
// are applied, cached nodes absent from the dump are dropped.
func (s *Subscriber) handleSync(nodes []matter.NodeState) {
	s.log().Info("syncing node dump", "nodes", len(nodes))

	present := make(map[uint64]bool, len(nodes))
	for _, node := range nodes {
		present[node.NodeID] = true
		s.applyNode(node, false)
	}

	stale := make(map[uint64]bool)
	for _, dev := range s.store.List() {
		if !present[dev.NodeID] {
			stale[dev.NodeID] = true
		}
	}
	for nodeID := range stale {
		s.log().Info("dropping node absent from dump", "node_id", nodeID)
		s.removeNode(nodeID)
	}
}

// applyUpdate normalises one attribute report and applies it.
func (s *Subscriber) applyUpdate(update matter.AttributeUpdate) {
	key, value, ok := NormalizeAttribute(update.Path, update.Value)
	if !ok {
		s.log().Debug("ignoring unmapped attribute",
			"node_id", update.NodeID, "path", update.Path.String())
		return
	}

	id := device.FormatID(update.NodeID, update.Path.Endpoint)
	kind := KindForCluster(update.Path.Cluster)

	dev, changed, err := s.store.ApplyAttribute(id, key, value)
	if errors.Is(err, device.ErrNotFound) {
		// A report for an endpoint we have not seen yet; seed it rather
		// than lose the reading. The reporting cluster classifies it,
		// so a light seen only through reports still controls as one.
		s.store.Apply(device.Device{
			NodeID:     update.NodeID,
			EndpointID: update.Path.Endpoint,
			Kind:       kind,
			Attributes: device.Attributes{key: value},
			Available:  true,
		})

		seeded, getErr := s.store.Get(id)
		if getErr != nil {
			return
		}
		s.recordOccupancy(id, key, value)
		s.notifyAdded(*seeded)
		return
	}
	if err != nil {
		s.log().Warn("attribute apply failed", "device_id", id, "error", err)
		return
	}

	// A report can reveal a more specific kind than the device was
	// seeded with.
	if promoted, kindChanged, promoteErr := s.store.PromoteKind(id, kind); promoteErr == nil && kindChanged {
		dev = promoted
		changed = true
	}

	if !changed {
		return
	}

	s.recordOccupancy(id, key, value)
	s.notifyChanged(*dev)
}

// recordOccupancy appends an occupancy transition to the history.
func (s *Subscriber) recordOccupancy(id, key string, value any) {
	if key != device.AttrOccupied {
		return
	}
	occupied, ok := value.(bool)
	if !ok {
		return
	}

	err := s.store.AppendOccupancy(device.OccupancyEvent{
		DeviceID:   id,
		Occupied:   occupied,
		ObservedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log().Warn("occupancy append failed", "device_id", id, "error", err)
	}
}

// applyNode converts a node state to devices and applies each. When
// announce is set the node is also handed to the binder for pending
// name assignment.
func (s *Subscriber) applyNode(node matter.NodeState, announce bool) {
	devices := NodeToDevices(node)
	if len(devices) == 0 {
		s.log().Debug("node carries no mapped devices", "node_id", node.NodeID)
	}

	for _, d := range devices {
		isNew := !s.store.Exists(d.ID)
		if !s.store.Apply(d) {
			continue
		}

		applied, err := s.store.Get(d.ID)
		if err != nil {
			continue
		}
		if isNew {
			s.notifyAdded(*applied)
		} else {
			s.notifyChanged(*applied)
		}
	}

	if announce {
		s.mu.RLock()
		binder := s.binder
		s.mu.RUnlock()

		if binder != nil {
			binder.HandleNodeAdded(node.NodeID, devices)
		}
	}
}

// removeNode drops every device of a node from the cache.
func (s *Subscriber) removeNode(nodeID uint64) {
	removed := s.store.RemoveNode(nodeID)
	for _, dev := range removed {
		s.notifyRemoved(dev)
	}
}

func (s *Subscriber) snapshotObservers() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Observer(nil), s.observers...)
}

func (s *Subscriber) notifyChanged(dev device.Device) {
	for _, o := range s.snapshotObservers() {
		o.DeviceChanged(dev)
	}
}

func (s *Subscriber) notifyAdded(dev device.Device) {
	for _, o := range s.snapshotObservers() {
		o.DeviceAdded(dev)
	}
}

func (s *Subscriber) notifyRemoved(dev device.Device) {
	for _, o := range s.snapshotObservers() {
		o.DeviceRemoved(dev)
	}
}
