package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/matter"
)

// stubRepository satisfies device.Repository; the subscriber tests never
// persist.
type stubRepository struct{}

func (stubRepository) LoadDevices(context.Context) ([]device.Device, error) { return nil, nil }
func (stubRepository) LoadOccupancy(context.Context) ([]device.OccupancyEvent, error) {
	return nil, nil
}
func (stubRepository) SaveSnapshot(context.Context, []device.Device, []device.OccupancyEvent) error {
	return nil
}

// fakeSource is a scripted EventSource. Events fire synchronously, so
// tests observe the cache immediately after emit returns.
type fakeSource struct {
	nodes     []matter.NodeState
	listenErr error

	onEvent func(matter.Event)
	onSync  func([]matter.NodeState)
}

func (f *fakeSource) StartListening(_ context.Context) ([]matter.NodeState, error) {
	return f.nodes, f.listenErr
}

func (f *fakeSource) SetOnEvent(cb func(matter.Event)) { f.onEvent = cb }

func (f *fakeSource) SetOnSync(cb func([]matter.NodeState)) { f.onSync = cb }

func (f *fakeSource) emit(t *testing.T, name, data string) {
	t.Helper()
	if f.onEvent == nil {
		t.Fatal("event callback not wired")
	}
	f.onEvent(matter.Event{Name: name, Data: json.RawMessage(data)})
}

// recordingObserver captures fan-out notifications.
type recordingObserver struct {
	changed []device.Device
	added   []device.Device
	removed []device.Device
}

func (r *recordingObserver) DeviceChanged(dev device.Device) { r.changed = append(r.changed, dev) }
func (r *recordingObserver) DeviceAdded(dev device.Device)   { r.added = append(r.added, dev) }
func (r *recordingObserver) DeviceRemoved(dev device.Device) { r.removed = append(r.removed, dev) }

// recordingBinder captures node announcements and whether the devices
// were already cached at call time.
type recordingBinder struct {
	store *device.Store

	nodeID  uint64
	devices []device.Device
	cached  bool
}

func (r *recordingBinder) HandleNodeAdded(nodeID uint64, devices []device.Device) {
	r.nodeID = nodeID
	r.devices = devices
	r.cached = true
	for _, d := range devices {
		if !r.store.Exists(d.ID) {
			r.cached = false
		}
	}
}

func lightNode(nodeID uint64) matter.NodeState {
	return matter.NodeState{
		NodeID:    nodeID,
		Available: true,
		Attributes: map[string]any{
			"1/6/0": true,
			"1/8/0": float64(254),
		},
	}
}

func newTestSubscriber(source *fakeSource) (*Subscriber, *device.Store, *recordingObserver) {
	store := device.NewStore(stubRepository{}, device.StoreConfig{})
	sub := NewSubscriber(source, store)
	obs := &recordingObserver{}
	sub.AddObserver(obs)
	return sub, store, obs
}

func TestSubscriberInitialSync(t *testing.T) {
	source := &fakeSource{nodes: []matter.NodeState{lightNode(1), lightNode(2)}}
	sub, store, obs := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2", store.Count())
	}
	if len(obs.added) != 2 {
		t.Errorf("DeviceAdded calls = %d, want 2", len(obs.added))
	}

	dev, err := store.Get("dev_1_1")
	if err != nil {
		t.Fatalf("Get(dev_1_1) error = %v", err)
	}
	if dev.Kind != device.KindLight {
		t.Errorf("Kind = %q, want light", dev.Kind)
	}
}

func TestSubscriberStartFailure(t *testing.T) {
	source := &fakeSource{listenErr: errors.New("backend down")}
	sub, store, _ := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want error")
	}

	// Callbacks stay wired, so a later reconnect sync still lands.
	if source.onSync == nil {
		t.Fatal("sync callback not wired after failed start")
	}
	source.onSync([]matter.NodeState{lightNode(3)})

	if !store.Exists("dev_3_1") {
		t.Error("device from recovery sync not cached")
	}
}

func TestSubscriberAttributeUpdate(t *testing.T) {
	source := &fakeSource{nodes: []matter.NodeState{lightNode(1)}}
	sub, store, obs := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	obs.changed = nil

	source.emit(t, matter.EventAttributeUpdated, `[1, "1/8/0", 127]`)

	dev, err := store.Get("dev_1_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got := dev.Attributes[device.AttrBrightness].(float64)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("brightness = %v, want 0.5", got)
	}

	if len(obs.changed) != 1 {
		t.Fatalf("DeviceChanged calls = %d, want 1", len(obs.changed))
	}

	// The identical report must not fan out again.
	source.emit(t, matter.EventAttributeUpdated, `[1, "1/8/0", 127]`)
	if len(obs.changed) != 1 {
		t.Errorf("DeviceChanged calls after redundant report = %d, want 1", len(obs.changed))
	}
}

func TestSubscriberSeedsUnknownEndpoint(t *testing.T) {
	source := &fakeSource{}
	sub, store, obs := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A report races ahead of its node dump; the reading must not be lost.
	source.emit(t, matter.EventAttributeUpdated, `[7, "1/1026/0", 2150]`)

	dev, err := store.Get("dev_7_1")
	if err != nil {
		t.Fatalf("Get(dev_7_1) error = %v", err)
	}
	got := dev.Attributes[device.AttrTemperature].(float64)
	if math.Abs(got-21.5) > 1e-9 {
		t.Errorf("temperature = %v, want 21.5", got)
	}
	if dev.Kind != device.KindSensor {
		t.Errorf("Kind = %q, want sensor", dev.Kind)
	}
	if len(obs.added) != 1 {
		t.Errorf("DeviceAdded calls = %d, want 1", len(obs.added))
	}
}

func TestSubscriberSeedClassifiesFromCluster(t *testing.T) {
	source := &fakeSource{}
	sub, store, _ := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A power report for a node the cache has never seen must produce a
	// controllable light, not an unclassified device.
	source.emit(t, matter.EventAttributeUpdated, `[7, "1/6/0", true]`)

	dev, err := store.Get("dev_7_1")
	if err != nil {
		t.Fatalf("Get(dev_7_1) error = %v", err)
	}
	if dev.Kind != device.KindLight {
		t.Errorf("Kind = %q, want light", dev.Kind)
	}
	if got := len(store.Lights()); got != 1 {
		t.Errorf("Lights() returned %d devices, want 1", got)
	}

	// An occupancy report seeds an occupancy device.
	source.emit(t, matter.EventAttributeUpdated, `[8, "1/1030/0", 1]`)

	dev, err = store.Get("dev_8_1")
	if err != nil {
		t.Fatalf("Get(dev_8_1) error = %v", err)
	}
	if dev.Kind != device.KindOccupancy {
		t.Errorf("Kind = %q, want occupancy", dev.Kind)
	}
}

func TestSubscriberPromotesSeededKind(t *testing.T) {
	source := &fakeSource{}
	sub, store, obs := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A temperature report seeds the endpoint as a sensor.
	source.emit(t, matter.EventAttributeUpdated, `[7, "1/1026/0", 2150]`)
	obs.changed = nil

	// A later power report reveals the endpoint is really a light.
	source.emit(t, matter.EventAttributeUpdated, `[7, "1/6/0", true]`)

	dev, err := store.Get("dev_7_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.Kind != device.KindLight {
		t.Errorf("Kind = %q, want light after power report", dev.Kind)
	}
	if len(obs.changed) != 1 {
		t.Errorf("DeviceChanged calls = %d, want 1", len(obs.changed))
	}

	// Sensor reports never demote the light.
	source.emit(t, matter.EventAttributeUpdated, `[7, "1/1026/0", 2200]`)

	dev, err = store.Get("dev_7_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.Kind != device.KindLight {
		t.Errorf("Kind = %q, want light after sensor report", dev.Kind)
	}
}

func TestSubscriberOccupancyHistory(t *testing.T) {
	source := &fakeSource{nodes: []matter.NodeState{{
		NodeID:    4,
		Available: true,
		Attributes: map[string]any{
			"1/1030/0": float64(0),
		},
	}}}
	sub, store, _ := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A dump seeds state without fabricating history.
	history, err := store.History("dev_4_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history after sync = %d entries, want 0", len(history))
	}

	source.emit(t, matter.EventAttributeUpdated, `[4, "1/1030/0", 1]`)
	source.emit(t, matter.EventAttributeUpdated, `[4, "1/1030/0", 0]`)
	// Redundant report records nothing.
	source.emit(t, matter.EventAttributeUpdated, `[4, "1/1030/0", 0]`)

	history, err = store.History("dev_4_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	// Newest first.
	if history[0].Occupied {
		t.Error("history[0].Occupied = true, want false (latest transition)")
	}
	if !history[1].Occupied {
		t.Error("history[1].Occupied = false, want true")
	}
}

func TestSubscriberNodeLifecycle(t *testing.T) {
	source := &fakeSource{}
	sub, store, obs := newTestSubscriber(source)

	binder := &recordingBinder{store: store}
	sub.SetNodeBinder(binder)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	source.emit(t, matter.EventNodeAdded, `{
		"node_id": 2,
		"available": true,
		"attributes": {"1/6/0": false}
	}`)

	if !store.Exists("dev_2_1") {
		t.Fatal("device not cached after node_added")
	}
	if binder.nodeID != 2 {
		t.Errorf("binder nodeID = %d, want 2", binder.nodeID)
	}
	if !binder.cached {
		t.Error("binder invoked before devices were cached")
	}
	if len(obs.added) != 1 {
		t.Errorf("DeviceAdded calls = %d, want 1", len(obs.added))
	}

	source.emit(t, matter.EventNodeRemoved, `2`)

	if store.Exists("dev_2_1") {
		t.Error("device still cached after node_removed")
	}
	if len(obs.removed) != 1 {
		t.Errorf("DeviceRemoved calls = %d, want 1", len(obs.removed))
	}
}

func TestSubscriberNodeUpdatedAvailability(t *testing.T) {
	source := &fakeSource{nodes: []matter.NodeState{lightNode(1)}}
	sub, store, obs := newTestSubscriber(source)

	binder := &recordingBinder{store: store}
	sub.SetNodeBinder(binder)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	obs.changed = nil

	offline := lightNode(1)
	offline.Available = false
	data, _ := json.Marshal(offline)
	source.emit(t, matter.EventNodeUpdated, string(data))

	dev, err := store.Get("dev_1_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.Available {
		t.Error("Available = true after node_updated, want false")
	}
	if len(obs.changed) != 1 {
		t.Errorf("DeviceChanged calls = %d, want 1", len(obs.changed))
	}

	// node_updated must not re-announce to the binder.
	if binder.nodeID != 0 {
		t.Errorf("binder invoked for node_updated (nodeID = %d)", binder.nodeID)
	}
}

func TestSubscriberSyncDropsStaleNodes(t *testing.T) {
	source := &fakeSource{nodes: []matter.NodeState{lightNode(1), lightNode(2)}}
	sub, store, obs := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", store.Count())
	}

	// Node 2 was decommissioned while the link was down.
	source.onSync([]matter.NodeState{lightNode(1)})

	if store.Exists("dev_2_1") {
		t.Error("stale device survived resync")
	}
	if !store.Exists("dev_1_1") {
		t.Error("live device dropped by resync")
	}
	if len(obs.removed) != 1 {
		t.Errorf("DeviceRemoved calls = %d, want 1", len(obs.removed))
	}
}

func TestSubscriberIgnoresMalformedEvents(t *testing.T) {
	source := &fakeSource{}
	sub, store, _ := newTestSubscriber(source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	source.emit(t, matter.EventAttributeUpdated, `{"not": "a triple"}`)
	source.emit(t, matter.EventNodeAdded, `[1, 2, 3]`)
	source.emit(t, matter.EventNodeRemoved, `"two"`)
	source.emit(t, "unknown_event", `{}`)

	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after malformed events", store.Count())
	}
}
