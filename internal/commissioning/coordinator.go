package commissioning

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/matter"
)

const (
	// DefaultSessionTimeout bounds the wait between forwarding a code
	// and the node arriving on the fabric. Interview and network setup
	// routinely take tens of seconds on battery devices.
	DefaultSessionTimeout = 2 * time.Minute

	// defaultRetention keeps finished sessions queryable after they
	// complete, so a caller that lost the response can still inspect
	// the outcome.
	defaultRetention = 10 * time.Minute

	// sweepInterval is how often Run prunes finished sessions.
	sweepInterval = time.Minute
)

// State identifies a commissioning session's position in its lifecycle.
type State string

const (
	// StateIdle precedes session creation; no accepted code yet.
	StateIdle State = "idle"

	// StatePayloadValidated means the setup code decoded cleanly.
	StatePayloadValidated State = "payload_validated"

	// StateAwaitingBackendAck means the code was forwarded and the
	// session is waiting for the node to arrive.
	StateAwaitingBackendAck State = "awaiting_backend_ack"

	// StateNodeAdded means the node arrived and binding is in progress.
	StateNodeAdded State = "node_added"

	// StateBound is the terminal success state: the device is
	// commissioned and any requested name was assigned.
	StateBound State = "bound"

	// StateFailed is the terminal failure state. The session error
	// carries the sub-failure; a set canonical ID alongside it means
	// the device itself was commissioned and only naming failed.
	StateFailed State = "failed"
)

// Logger is the interface for commissioning log output.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Commander sends commissioning commands to the controller backend.
// *matter.Client satisfies it.
type Commander interface {
	SendCommand(ctx context.Context, command string, args map[string]any) (json.RawMessage, error)
}

// NameBinder assigns a friendly name to a commissioned device. The
// alias resolver satisfies it.
type NameBinder interface {
	Assign(ref, name string) (string, error)
}

// DeviceView exposes the cached devices of a node, ordered by endpoint.
type DeviceView interface {
	NodeDevices(nodeID uint64) []device.Device
}

// Result is the outcome of a commissioning attempt.
type Result struct {
	// SessionID identifies the attempt for later lookup.
	SessionID string

	// State is the session state at the time the result was taken.
	State State

	// NodeID is the fabric node the device joined as, once known.
	NodeID uint64

	// CanonicalID is the device the session bound to. A non-empty
	// value means commissioning itself succeeded.
	CanonicalID string

	// Name is the friendly name bound to the device, when naming was
	// requested and succeeded.
	Name string

	// NamingWarning describes a non-fatal naming failure: the device
	// was commissioned but the requested name could not be assigned.
	NamingWarning string

	// Err is the terminal failure, nil for a bound session.
	Err error
}

// Commissioned reports whether the device joined the fabric, regardless
// of whether the naming step succeeded.
func (r Result) Commissioned() bool {
	return r.CanonicalID != ""
}

// session is the coordinator's record of one commissioning attempt.
type session struct {
	id          string
	state       State
	payload     Payload
	pendingName string
	boundName   string
	nodeID      uint64
	canonicalID string
	warning     string
	err         error
	createdAt   time.Time
	updatedAt   time.Time

	// done is closed exactly once, when the session reaches a terminal
	// state.
	done chan struct{}
}

// Config holds coordinator tuning knobs.
type Config struct {
	// SessionTimeout bounds the wait for a node after a code is
	// accepted. Zero selects DefaultSessionTimeout.
	SessionTimeout time.Duration

	// Retention controls how long finished sessions stay queryable.
	// Zero selects a ten minute default.
	Retention time.Duration
}

// Coordinator drives commissioning attempts through their lifecycle:
// validate the setup code, forward it to the backend, wait for the
// node, then bind the canonical device ID and any requested name.
//
// Node arrival is raced from two sides. The backend's command result
// carries the node, and the event subscriber announces it once the
// node's devices are cached; whichever lands first wins and the other
// becomes a no-op.
type Coordinator struct {
	commander Commander
	names     NameBinder
	devices   DeviceView

	timeout   time.Duration
	retention time.Duration

	mu       sync.Mutex
	sessions map[string]*session

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a coordinator. All three collaborators are required.
func New(commander Commander, names NameBinder, devices DeviceView, cfg Config) *Coordinator {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}

	return &Coordinator{
		commander: commander,
		names:     names,
		devices:   devices,
		timeout:   cfg.SessionTimeout,
		retention: cfg.Retention,
		sessions:  make(map[string]*session),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for coordinator operations.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Register runs one commissioning attempt and blocks until it reaches
// a terminal state or ctx is cancelled.
//
// The setup code is validated first; malformed codes fail synchronously
// with ErrInvalidCode and never reach the backend. A non-empty ipAddr
// pins commissioning to that address using the decoded setup PIN,
// otherwise the code is forwarded verbatim for discovery. A non-empty
// name is stashed against the session and assigned once the node's
// canonical device ID is known.
//
// A nil error means the device was commissioned. Naming failures are
// non-fatal: the Result carries a NamingWarning and the session ends
// Failed, but the returned error is still nil. If ctx expires first the
// attempt keeps running in the background so a late node arrival can
// still bind; the session stays queryable via Session.
func (c *Coordinator) Register(ctx context.Context, code, ipAddr, name string) (Result, error) {
	payload, err := ValidateCode(code)
	if err != nil {
		c.logInfo("setup code rejected", "error", err)
		return Result{State: StateFailed, Err: err}, err
	}

	sess := c.addSession(payload, name)
	c.logInfo("commissioning session started",
		"session_id", sess.id,
		"kind", string(payload.Kind),
		"named", name != "")

	command := matter.CmdCommissionWithCode
	args := matter.CommissionWithCodeArgs(payload.Code)
	if ipAddr != "" {
		command = matter.CmdCommissionOnNetwork
		args = matter.CommissionOnNetworkArgs(payload.SetupPIN, ipAddr)
	}

	c.setState(sess, StateAwaitingBackendAck)

	go c.watchTimeout(sess)
	go c.forward(sess, command, args)

	select {
	case <-sess.done:
		return c.result(sess), c.terminalErr(sess)
	case <-ctx.Done():
		return c.result(sess), ctx.Err()
	}
}

// Session reports the current state of a commissioning attempt.
func (c *Coordinator) Session(id string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[id]
	if !ok {
		return Result{}, ErrSessionNotFound
	}
	return resultLocked(sess), nil
}

// Active returns the number of sessions still in flight.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := 0
	for _, s := range c.sessions {
		if s.state != StateBound && s.state != StateFailed {
			active++
		}
	}
	return active
}

// HandleNodeAdded binds a freshly announced node to the session waiting
// for it. The subscriber calls it after the node's devices are cached,
// so canonical ID derivation always sees them. Announcements with no
// matching session come from resyncs or foreign controllers and are
// ignored.
func (c *Coordinator) HandleNodeAdded(nodeID uint64, devices []device.Device) {
	sess := c.matchAwaiting(nodeID)
	if sess == nil {
		return
	}
	c.nodeArrived(sess, nodeID, devices)
}

// Run prunes finished sessions until ctx is cancelled. Terminal
// sessions are kept for the retention window first.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.sweep(time.Now().UTC()); n > 0 {
				c.logDebug("pruned finished sessions", "count", n)
			}
		}
	}
}

// forward delivers the commissioning command and feeds the resulting
// node back into the session. It runs in its own goroutine; the session
// timeout covers the whole exchange.
func (c *Coordinator) forward(sess *session, command string, args map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.commander.SendCommand(ctx, command, args)
	if err != nil {
		c.fail(sess, fmt.Errorf("%w: %w", ErrBackendFailed, err))
		return
	}

	var node matter.NodeState
	if err := json.Unmarshal(result, &node); err != nil {
		c.fail(sess, fmt.Errorf("%w: parsing node result: %v", ErrBackendFailed, err))
		return
	}

	c.logInfo("backend acknowledged commissioning",
		"session_id", sess.id,
		"node_id", node.NodeID)
	c.nodeArrived(sess, node.NodeID, nil)
}

// nodeArrived moves a session to NodeAdded and binds it. Pass nil
// devices to look them up from the cache; if the cache has nothing for
// the node yet, only the node ID is recorded and the subscriber's
// announcement completes the binding later.
func (c *Coordinator) nodeArrived(sess *session, nodeID uint64, devices []device.Device) {
	if devices == nil {
		devices = c.devices.NodeDevices(nodeID)
	}

	c.mu.Lock()
	if sess.state != StateAwaitingBackendAck {
		c.mu.Unlock()
		return
	}
	sess.nodeID = nodeID
	sess.updatedAt = time.Now().UTC()
	if len(devices) == 0 {
		c.mu.Unlock()
		return
	}
	sess.state = StateNodeAdded
	pending := sess.pendingName
	c.mu.Unlock()

	c.bind(sess, canonicalDevice(devices), pending)
}

// bind assigns the canonical ID and, when requested, the pending name.
// Naming failures leave the device commissioned; the session ends
// Failed carrying the naming sub-failure, with the warning preserved
// for the caller.
func (c *Coordinator) bind(sess *session, canonical, pendingName string) {
	c.mu.Lock()
	sess.canonicalID = canonical
	c.mu.Unlock()

	if pendingName == "" {
		c.logInfo("device commissioned", "session_id", sess.id, "device_id", canonical)
		c.finish(sess, StateBound, nil)
		return
	}

	if _, err := c.names.Assign(canonical, pendingName); err != nil {
		c.logWarn("naming failed after commissioning",
			"session_id", sess.id,
			"device_id", canonical,
			"name", pendingName,
			"error", err)
		c.mu.Lock()
		sess.warning = fmt.Sprintf("commissioned as %s but name %q could not be assigned: %v", canonical, pendingName, err)
		c.mu.Unlock()
		c.finish(sess, StateFailed, fmt.Errorf("%w: %w", ErrNamingFailed, err))
		return
	}

	c.mu.Lock()
	sess.boundName = pendingName
	c.mu.Unlock()

	c.logInfo("device commissioned",
		"session_id", sess.id,
		"device_id", canonical,
		"name", pendingName)
	c.finish(sess, StateBound, nil)
}

// matchAwaiting finds the session a node announcement belongs to. A
// session already marked with the node ID by the backend result wins;
// otherwise the oldest session still awaiting its ack is assumed to be
// the one that triggered the join.
func (c *Coordinator) matchAwaiting(nodeID uint64) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest *session
	for _, s := range c.sessions {
		if s.state != StateAwaitingBackendAck {
			continue
		}
		if s.nodeID == nodeID {
			return s
		}
		if s.nodeID != 0 {
			continue
		}
		if oldest == nil || s.createdAt.Before(oldest.createdAt) {
			oldest = s
		}
	}
	return oldest
}

// watchTimeout expires a session that never saw its node arrive. The
// pending name dies with the session, so a late join cannot claim it.
// Sessions already past the awaiting phase are left to finish binding.
func (c *Coordinator) watchTimeout(sess *session) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-sess.done:
	case <-timer.C:
		c.expire(sess)
	}
}

func (c *Coordinator) expire(sess *session) {
	c.mu.Lock()
	if sess.state != StatePayloadValidated && sess.state != StateAwaitingBackendAck {
		c.mu.Unlock()
		return
	}
	sess.state = StateFailed
	sess.err = ErrSessionTimeout
	sess.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	close(sess.done)
	c.logWarn("commissioning session timed out", "session_id", sess.id)
}

// fail moves a session to Failed unless it is already terminal.
func (c *Coordinator) fail(sess *session, err error) {
	c.logWarn("commissioning session failed", "session_id", sess.id, "error", err)
	c.finish(sess, StateFailed, err)
}

// finish records a terminal state and wakes the waiting caller. The
// first terminal transition wins; later ones are no-ops.
func (c *Coordinator) finish(sess *session, state State, err error) {
	c.mu.Lock()
	if sess.state == StateBound || sess.state == StateFailed {
		c.mu.Unlock()
		return
	}
	sess.state = state
	sess.err = err
	sess.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	close(sess.done)
}

func (c *Coordinator) addSession(payload Payload, pendingName string) *session {
	now := time.Now().UTC()
	sess := &session{
		id:          uuid.NewString(),
		state:       StatePayloadValidated,
		payload:     payload,
		pendingName: pendingName,
		createdAt:   now,
		updatedAt:   now,
		done:        make(chan struct{}),
	}

	c.mu.Lock()
	c.sessions[sess.id] = sess
	c.mu.Unlock()
	return sess
}

func (c *Coordinator) setState(sess *session, state State) {
	c.mu.Lock()
	sess.state = state
	sess.updatedAt = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Coordinator) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, s := range c.sessions {
		if s.state != StateBound && s.state != StateFailed {
			continue
		}
		if now.Sub(s.updatedAt) < c.retention {
			continue
		}
		delete(c.sessions, id)
		removed++
	}
	return removed
}

func (c *Coordinator) result(sess *session) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return resultLocked(sess)
}

func resultLocked(sess *session) Result {
	return Result{
		SessionID:     sess.id,
		State:         sess.state,
		NodeID:        sess.nodeID,
		CanonicalID:   sess.canonicalID,
		Name:          sess.boundName,
		NamingWarning: sess.warning,
		Err:           sess.err,
	}
}

// terminalErr is the error Register surfaces for a finished session.
// Naming failures are not surfaced here: the device was commissioned
// and the warning travels in the Result instead.
func (c *Coordinator) terminalErr(sess *session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.canonicalID != "" {
		return nil
	}
	return sess.err
}

// canonicalDevice picks the device a session binds to. A node exposing
// exactly one device is unambiguous; otherwise endpoint 1 wins, then
// the lowest endpoint. Callers guarantee a non-empty slice ordered by
// endpoint.
func canonicalDevice(devices []device.Device) string {
	if len(devices) == 1 {
		return devices[0].ID
	}
	for _, d := range devices {
		if d.EndpointID == 1 {
			return d.ID
		}
	}
	return devices[0].ID
}

func (c *Coordinator) logDebug(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	c.logger.Debug(msg, args...)
}

func (c *Coordinator) logInfo(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	c.logger.Info(msg, args...)
}

func (c *Coordinator) logWarn(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	c.logger.Warn(msg, args...)
}
