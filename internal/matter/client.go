package matter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for Matter server communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial
	// connection and server-info greeting.
	defaultConnectTimeout = 10 * time.Second

	// defaultCommandTimeout is the deadline applied to commands whose
	// context carries none of its own.
	defaultCommandTimeout = 15 * time.Second

	// defaultWriteTimeout is the timeout for writing a single frame.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection
	// attempts.
	defaultReconnectInterval = 2 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection
	// attempts.
	maxReconnectInterval = 2 * time.Minute

	// eventQueueSize is the buffer size for the event dispatch queue.
	eventQueueSize = 256
)

// Config holds Matter server connection configuration.
type Config struct {
	// URL is the WebSocket URL of the Matter server,
	// e.g. "ws://localhost:5580/ws".
	URL string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout is the default deadline for command responses.
	// Default: 15 seconds.
	CommandTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection
	// attempts. Default: 2 seconds.
	ReconnectInterval time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	CommandsSent    uint64
	EventsReceived  uint64
	EventsDropped   uint64 // Events dropped due to full dispatch queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful reconnections
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool // True if currently attempting to reconnect
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector interface for testability.
// This allows mocking the Matter server client in tests.
type Connector interface {
	SendCommand(ctx context.Context, command string, args map[string]any) (json.RawMessage, error)
	StartListening(ctx context.Context) ([]NodeState, error)
	SetOnEvent(callback func(Event))
	SetOnSync(callback func([]NodeState))
	IsConnected() bool
	ServerInfo() ServerInfo
	Stats() Stats
	Close() error
}

// Ensure Client implements Connector.
var _ Connector = (*Client)(nil)

// commandResult carries a command response through the pending table.
type commandResult struct {
	result json.RawMessage
	err    error
}

// dispatchItem is one unit of work for the dispatch worker. Either a
// node-dump replay after (re)connect, or a single live event.
type dispatchItem struct {
	sync  []NodeState
	event Event
}

// Client provides a connection to the Matter server WebSocket API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Event callbacks are invoked from a single dispatch goroutine, so
//     events are observed in arrival order.
//
// Auto-Reconnection:
//   - When the connection is lost, the client automatically attempts to
//     reconnect with exponential backoff starting at ReconnectInterval
//     (default 2s) up to maxReconnectInterval (2min).
//   - After a reconnect the subscription is re-established and the fresh
//     node dump is delivered through the sync callback before any
//     subsequent live events.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg Config

	// Connection state
	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool

	// writeMu serialises frame writes; gorilla connections permit only
	// one concurrent writer.
	writeMu sync.Mutex

	// Server greeting from the current connection
	infoMu sync.RWMutex
	info   ServerInfo

	// Reconnection state
	reconnecting   atomic.Bool  // True while reconnection is in progress
	reconnectCount atomic.Int32 // Number of consecutive reconnection attempts
	listening      atomic.Bool  // True once StartListening has succeeded

	// Pending command correlation table keyed by message ID
	pendingMu sync.Mutex
	pending   map[string]chan commandResult

	// Event callbacks
	onEvent    func(Event)
	onSync     func([]NodeState)
	callbackMu sync.RWMutex

	// Dispatch queue consumed by a single worker (preserves event order)
	dispatchQueue chan dispatchItem

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	commandsSent    atomic.Uint64
	eventsReceived  atomic.Uint64
	eventsDropped   atomic.Uint64 // Events dropped due to full queue
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64 // Successful reconnections
	lastActivity    atomic.Int64  // Unix timestamp
}

// Connect establishes a connection to the Matter server.
//
// After the WebSocket handshake it waits for the server-info greeting,
// then starts the receive loop and dispatch worker. Call StartListening
// to subscribe to events and obtain the initial node dump.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If connection or greeting fails
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	// Apply defaults
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	connectCtx := ctx
	if connectCtx == nil {
		connectCtx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(connectCtx, cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(connectCtx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	client := &Client{
		cfg:           cfg,
		conn:          conn,
		done:          newCloseOnce(),
		pending:       make(map[string]chan commandResult),
		dispatchQueue: make(chan dispatchItem, eventQueueSize),
	}
	client.lastActivity.Store(time.Now().Unix())

	// The first frame is always the server-info greeting.
	if err := client.readServerInfo(connectCtx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: greeting: %w", ErrConnectionFailed, err)
	}

	// Mark as connected
	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	// Start dispatch worker (single goroutine preserves event order)
	client.wg.Add(1)
	go client.dispatchWorker()

	// Start receive loop
	client.wg.Add(1)
	go client.receiveLoop()

	return client, nil
}

// readServerInfo reads and stores the server-info greeting frame.
func (c *Client) readServerInfo(ctx context.Context, conn *websocket.Conn) error {
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	var info ServerInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return fmt.Errorf("decode greeting: %w", err)
	}
	if info.SchemaVersion == 0 {
		return fmt.Errorf("greeting missing schema version")
	}

	// Clear the handshake deadline; the receive loop blocks indefinitely
	// and relies on connection errors for liveness.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear read deadline: %w", err)
	}

	c.infoMu.Lock()
	c.info = info
	c.infoMu.Unlock()

	return nil
}

// StartListening subscribes to server events and returns the initial
// node dump. Events begin flowing to the event callback after this call.
// On later reconnects the client re-subscribes automatically and delivers
// the fresh dump through the sync callback.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - []NodeState: Every node currently commissioned on the fabric
//   - error: If the command fails
func (c *Client) StartListening(ctx context.Context) ([]NodeState, error) {
	result, err := c.SendCommand(ctx, CmdStartListening, nil)
	if err != nil {
		return nil, err
	}

	var nodes []NodeState
	if err := json.Unmarshal(result, &nodes); err != nil {
		return nil, fmt.Errorf("%w: node dump: %w", ErrInvalidMessage, err)
	}

	c.listening.Store(true)
	return nodes, nil
}

// SendCommand sends a command and waits for the correlated response.
//
// If ctx carries no deadline, the configured CommandTimeout applies.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - command: Command name (see Cmd* constants)
//   - args: Command arguments, may be nil
//
// Returns:
//   - json.RawMessage: The response result payload
//   - error: ErrNotConnected, ErrTimeout, or a *CommandError from the server
func (c *Client) SendCommand(ctx context.Context, command string, args map[string]any) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CommandTimeout)
		defer cancel()
	}

	msg := ClientMessage{
		MessageID: uuid.NewString(),
		Command:   command,
		Args:      args,
	}

	// Register before writing so the response cannot race the table.
	ch := make(chan commandResult, 1)
	c.pendingMu.Lock()
	c.pending[msg.MessageID] = ch
	c.pendingMu.Unlock()

	if err := c.writeMessage(ctx, msg); err != nil {
		c.removePending(msg.MessageID)
		return nil, err
	}

	c.commandsSent.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	select {
	case <-ctx.Done():
		c.removePending(msg.MessageID)
		return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, command, ctx.Err())
	case <-c.done.Done():
		c.removePending(msg.MessageID)
		return nil, ErrClosed
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

// writeMessage writes a single frame under the write lock.
func (c *Client) writeMessage(ctx context.Context, msg ClientMessage) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrConnectionFailed, err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrConnectionFailed, err)
	}
	return nil
}

// removePending removes a pending command entry without delivering.
func (c *Client) removePending(messageID string) {
	c.pendingMu.Lock()
	delete(c.pending, messageID)
	c.pendingMu.Unlock()
}

// failPending delivers an error to every pending command and clears the
// table. Called on connection loss so callers do not hang until timeout.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- commandResult{err: err}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// receiveLoop continuously reads frames from the server.
// On connection loss, it automatically attempts reconnection with
// exponential backoff.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			if c.isClosed() {
				return
			}
			if !c.reconnect() {
				return
			}
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return // Shutdown requested, exit cleanly
			}

			c.logError("read failed", err)
			c.errorsTotal.Add(1)
			c.handleDisconnect()

			if !c.reconnect() {
				return // Shutdown during reconnection, exit cleanly
			}
			continue
		}

		c.routeMessage(raw)
	}
}

// routeMessage decodes a frame and routes it to the pending-command
// table, the event queue, or the server-info slot.
func (c *Client) routeMessage(raw []byte) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logError("decode message failed", err)
		c.errorsTotal.Add(1)
		return
	}

	c.lastActivity.Store(time.Now().Unix())

	switch {
	case msg.MessageID != "":
		c.handleResponse(msg)
	case msg.Event != "":
		c.handleEvent(Event{Name: msg.Event, Data: msg.Data})
	case msg.SchemaVersion != 0:
		// Late greeting; keep the latest info.
		var info ServerInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			c.infoMu.Lock()
			c.info = info
			c.infoMu.Unlock()
		}
	default:
		c.logDebug("unrecognised message", "raw", string(raw))
	}
}

// handleResponse delivers a command response to its waiting caller.
func (c *Client) handleResponse(msg serverMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.MessageID]
	if ok {
		delete(c.pending, msg.MessageID)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Caller gave up (timeout) before the response arrived.
		c.logDebug("response for unknown command", "message_id", msg.MessageID)
		return
	}

	if msg.ErrorCode != nil {
		c.errorsTotal.Add(1)
		ch <- commandResult{err: &CommandError{Code: *msg.ErrorCode, Details: msg.Details}}
		return
	}
	ch <- commandResult{result: msg.Result}
}

// handleEvent queues an event for the dispatch worker.
func (c *Client) handleEvent(ev Event) {
	c.eventsReceived.Add(1)

	c.callbackMu.RLock()
	hasCallback := c.onEvent != nil
	c.callbackMu.RUnlock()

	if !hasCallback {
		return
	}

	// Non-blocking send with drop on overflow. Dropping live attribute
	// reports is safe: the next report or resync restores the state.
	select {
	case c.dispatchQueue <- dispatchItem{event: ev}:
	default:
		c.logError("event queue full, dropping event", nil)
		c.eventsDropped.Add(1)
		c.errorsTotal.Add(1)
	}
}

// dispatchWorker delivers queued items to the callbacks.
// A single worker preserves event arrival order.
func (c *Client) dispatchWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainDispatchQueue()
			return
		case item := <-c.dispatchQueue:
			c.callbackMu.RLock()
			onEvent := c.onEvent
			onSync := c.onSync
			c.callbackMu.RUnlock()

			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logError("event callback panic", fmt.Errorf("%v", r))
					}
				}()
				if item.sync != nil {
					if onSync != nil {
						onSync(item.sync)
					}
					return
				}
				if onEvent != nil {
					onEvent(item.event)
				}
			}()
		}
	}
}

// drainDispatchQueue discards any remaining items during shutdown.
func (c *Client) drainDispatchQueue() {
	for {
		select {
		case <-c.dispatchQueue:
		default:
			return
		}
	}
}

// handleDisconnect marks the connection lost and fails pending commands.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	c.failPending(ErrNotConnected)

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect attempts to re-establish the connection with exponential
// backoff. Returns true if reconnection succeeded, false if shutdown was
// signalled.
func (c *Client) reconnect() bool {
	// Prevent multiple concurrent reconnection attempts
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	backoff := c.cfg.ReconnectInterval
	if backoff == 0 {
		backoff = defaultReconnectInterval
	}

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dial()
		if err != nil {
			backoff = c.handleReconnectFailure("dial failed", err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		if err := c.establishConnection(conn); err != nil {
			backoff = c.handleReconnectFailure("greeting failed", err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		c.finalizeReconnection()
		return true
	}
}

// waitForReconnection waits for another goroutine to complete reconnection.
func (c *Client) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

// closeOldConnection closes the existing connection if any.
func (c *Client) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// dial attempts to dial the server with the connect timeout.
func (c *Client) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

// establishConnection installs the connection and reads the greeting.
func (c *Client) establishConnection(conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.readServerInfo(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleReconnectFailure handles a failed reconnection attempt.
// Returns the new backoff duration, or 0 if shutdown was signalled.
func (c *Client) handleReconnectFailure(reason string, err error, backoff time.Duration) time.Duration {
	c.logError("reconnect: "+reason, err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0 // Signal shutdown
	case <-time.After(backoff):
	}

	// Exponential backoff with cap
	newBackoff := time.Duration(float64(backoff) * 1.5)
	if newBackoff > maxReconnectInterval {
		newBackoff = maxReconnectInterval
	}
	return newBackoff
}

// finalizeReconnection updates stats and re-establishes the subscription.
func (c *Client) finalizeReconnection() {
	c.reconnectCount.Store(0)
	c.reconnectsTotal.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())

	if !c.listening.Load() {
		return
	}

	// Re-subscribe and hand the fresh dump to the sync callback. Queued
	// ahead of subsequent live events, so consumers replay the dump first.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
		defer cancel()

		result, err := c.SendCommand(ctx, CmdStartListening, nil)
		if err != nil {
			c.logError("resubscribe failed", err)
			return
		}

		var nodes []NodeState
		if err := json.Unmarshal(result, &nodes); err != nil {
			c.logError("resubscribe node dump invalid", err)
			return
		}
		if nodes == nil {
			nodes = []NodeState{}
		}

		select {
		case c.dispatchQueue <- dispatchItem{sync: nodes}:
		case <-c.done.Done():
		}
	}()
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully closes the connection.
//
// It signals the receive loop to stop, fails pending commands, and
// closes the underlying connection. Safe to call multiple times.
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *Client) Close() error {
	// Signal shutdown (safe to call multiple times via sync.Once)
	c.done.Close()

	// Mark disconnected
	c.connMu.Lock()
	c.connected = false
	conn := c.conn
	c.connMu.Unlock()

	c.failPending(ErrClosed)

	// Close connection (this will unblock any pending reads)
	if conn != nil {
		conn.Close()
	}

	// Wait for all goroutines to finish
	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// SetOnEvent sets the callback for server events.
//
// The callback is invoked from a single dispatch goroutine in arrival
// order. Panics in the callback are recovered and logged.
func (c *Client) SetOnEvent(callback func(Event)) {
	c.callbackMu.Lock()
	c.onEvent = callback
	c.callbackMu.Unlock()
}

// SetOnSync sets the callback for post-reconnect node dumps.
//
// Invoked from the same dispatch goroutine as the event callback, before
// any event that arrived after the resubscription.
func (c *Client) SetOnSync(callback func([]NodeState)) {
	c.callbackMu.Lock()
	c.onSync = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if connected to the Matter server.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// ServerInfo returns the greeting from the current connection.
func (c *Client) ServerInfo() ServerInfo {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.info
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		CommandsSent:    c.commandsSent.Load(),
		EventsReceived:  c.eventsReceived.Load(),
		EventsDropped:   c.eventsDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck verifies the connection is alive.
//
// Note: This only checks connection state; the receive loop detects
// broken links through read errors.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
