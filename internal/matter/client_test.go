package matter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockMatterServer simulates the Matter server WebSocket API for testing.
type mockMatterServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	// onCommand builds the result for a received command. Returning a
	// non-nil error code produces an error response.
	onCommand func(msg ClientMessage) (result any, errCode *int, details string)
}

func newMockMatterServer(t *testing.T) *mockMatterServer {
	t.Helper()

	s := &mockMatterServer{}
	s.server = httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(s.Close)
	return s
}

func (s *mockMatterServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	// Server-info greeting, always the first frame.
	s.writeJSON(conn, map[string]any{
		"fabric_id":                    1,
		"compressed_fabric_id":         87645,
		"schema_version":               11,
		"min_supported_schema_version": 2,
		"sdk_version":                  "2024.9.0",
		"wifi_credentials_set":         false,
		"thread_credentials_set":       false,
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		s.mu.Lock()
		handler := s.onCommand
		s.mu.Unlock()

		if handler == nil {
			s.writeJSON(conn, map[string]any{"message_id": msg.MessageID, "result": nil})
			continue
		}

		result, errCode, details := handler(msg)
		if errCode != nil {
			s.writeJSON(conn, map[string]any{
				"message_id": msg.MessageID,
				"error_code": *errCode,
				"details":    details,
			})
			continue
		}
		if result == nil {
			continue // Handler swallowed the command (timeout tests)
		}
		s.writeJSON(conn, map[string]any{"message_id": msg.MessageID, "result": result})
	}
}

func (s *mockMatterServer) writeJSON(conn *websocket.Conn, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.WriteJSON(v)
}

// SendEvent pushes an event frame to every connected client.
func (s *mockMatterServer) SendEvent(t *testing.T, name string, data any) {
	t.Helper()

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()

	if len(conns) == 0 {
		t.Fatal("no client connected")
	}
	for _, conn := range conns {
		s.mu.Lock()
		conn.WriteJSON(map[string]any{"event": name, "data": data})
		s.mu.Unlock()
	}
}

func (s *mockMatterServer) SetOnCommand(handler func(msg ClientMessage) (any, *int, string)) {
	s.mu.Lock()
	s.onCommand = handler
	s.mu.Unlock()
}

func (s *mockMatterServer) URL() string {
	return strings.Replace(s.server.URL, "http://", "ws://", 1)
}

func (s *mockMatterServer) Close() {
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.server.Close()
}

func connectTestClient(t *testing.T, server *mockMatterServer) *Client {
	t.Helper()

	client, err := Connect(context.Background(), Config{
		URL:            server.URL(),
		ConnectTimeout: 2 * time.Second,
		CommandTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect(t *testing.T) {
	server := newMockMatterServer(t)
	client := connectTestClient(t, server)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	info := client.ServerInfo()
	if info.SchemaVersion != 11 {
		t.Errorf("SchemaVersion = %d, want 11", info.SchemaVersion)
	}
	if info.SDKVersion != "2024.9.0" {
		t.Errorf("SDKVersion = %q, want 2024.9.0", info.SDKVersion)
	}
}

func TestConnectFailure(t *testing.T) {
	// Nothing listens on this port.
	_, err := Connect(context.Background(), Config{
		URL:            "ws://127.0.0.1:19999/ws",
		ConnectTimeout: 500 * time.Millisecond,
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestStartListening(t *testing.T) {
	server := newMockMatterServer(t)
	server.SetOnCommand(func(msg ClientMessage) (any, *int, string) {
		if msg.Command != CmdStartListening {
			t.Errorf("command = %q, want %q", msg.Command, CmdStartListening)
		}
		return []map[string]any{
			{
				"node_id":   1,
				"available": true,
				"attributes": map[string]any{
					"1/6/0": true,
					"1/8/0": 200,
				},
			},
			{
				"node_id":   2,
				"available": false,
				"attributes": map[string]any{
					"1/1026/0": 2150,
				},
			},
		}, nil, ""
	})

	client := connectTestClient(t, server)

	nodes, err := client.StartListening(context.Background())
	if err != nil {
		t.Fatalf("StartListening() error: %v", err)
	}

	if len(nodes) != 2 {
		t.Fatalf("StartListening() returned %d nodes, want 2", len(nodes))
	}
	if nodes[0].NodeID != 1 || !nodes[0].Available {
		t.Errorf("node 0 = %+v, want available node 1", nodes[0])
	}
	if nodes[1].NodeID != 2 || nodes[1].Available {
		t.Errorf("node 1 = %+v, want unavailable node 2", nodes[1])
	}

	if v, ok := nodes[0].AttributeValue(AttributePath{Endpoint: 1, Cluster: 6, Attribute: 0}); !ok || v != true {
		t.Errorf("node 0 power attribute = %v, want true", v)
	}
}

func TestSendCommandServerError(t *testing.T) {
	server := newMockMatterServer(t)
	code := 9
	server.SetOnCommand(func(_ ClientMessage) (any, *int, string) {
		return nil, &code, "node not found"
	})

	client := connectTestClient(t, server)

	_, err := client.SendCommand(context.Background(), CmdDeviceCommand, nil)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("SendCommand() error = %v, want ErrCommandFailed", err)
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("SendCommand() error = %v, want *CommandError", err)
	}
	if cmdErr.Code != 9 {
		t.Errorf("Code = %d, want 9", cmdErr.Code)
	}
	if cmdErr.Details != "node not found" {
		t.Errorf("Details = %q, want %q", cmdErr.Details, "node not found")
	}
}

func TestSendCommandTimeout(t *testing.T) {
	server := newMockMatterServer(t)
	server.SetOnCommand(func(_ ClientMessage) (any, *int, string) {
		return nil, nil, "" // Never answer
	})

	client := connectTestClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.SendCommand(ctx, CmdStartListening, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("SendCommand() error = %v, want ErrTimeout", err)
	}
}

func TestSendCommandNotConnected(t *testing.T) {
	client := &Client{
		cfg:     Config{CommandTimeout: time.Second},
		done:    newCloseOnce(),
		pending: make(map[string]chan commandResult),
	}

	_, err := client.SendCommand(context.Background(), CmdStartListening, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}
}

func TestEventDeliveryOrder(t *testing.T) {
	server := newMockMatterServer(t)
	client := connectTestClient(t, server)

	received := make(chan Event, 16)
	client.SetOnEvent(func(ev Event) {
		received <- ev
	})

	// Give the receive loop time to settle.
	time.Sleep(50 * time.Millisecond)

	server.SendEvent(t, EventAttributeUpdated, []any{1, "1/8/0", 10})
	server.SendEvent(t, EventAttributeUpdated, []any{1, "1/8/0", 20})
	server.SendEvent(t, EventNodeRemoved, 4)

	wantNames := []string{EventAttributeUpdated, EventAttributeUpdated, EventNodeRemoved}
	for i, want := range wantNames {
		select {
		case ev := <-received:
			if ev.Name != want {
				t.Errorf("event %d = %q, want %q", i, ev.Name, want)
			}
			if i == 1 {
				update, err := ev.AttributeUpdate()
				if err != nil {
					t.Fatalf("AttributeUpdate() error: %v", err)
				}
				if v, ok := update.Value.(float64); !ok || v != 20 {
					t.Errorf("second update value = %v, want 20 (order preserved)", update.Value)
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}

	stats := client.Stats()
	if stats.EventsReceived != 3 {
		t.Errorf("EventsReceived = %d, want 3", stats.EventsReceived)
	}
}

func TestClientClose(t *testing.T) {
	server := newMockMatterServer(t)

	client, err := Connect(context.Background(), Config{
		URL:            server.URL(),
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	// Close must be idempotent.
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestClientStats(t *testing.T) {
	client := &Client{
		done:    newCloseOnce(),
		pending: make(map[string]chan commandResult),
	}
	client.lastActivity.Store(time.Now().Unix())

	stats := client.Stats()
	if stats.CommandsSent != 0 || stats.EventsReceived != 0 || stats.Connected {
		t.Errorf("initial stats = %+v, want zeroed and disconnected", stats)
	}

	client.commandsSent.Add(3)
	client.eventsReceived.Add(7)
	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	stats = client.Stats()
	if stats.CommandsSent != 3 {
		t.Errorf("CommandsSent = %d, want 3", stats.CommandsSent)
	}
	if stats.EventsReceived != 7 {
		t.Errorf("EventsReceived = %d, want 7", stats.EventsReceived)
	}
	if !stats.Connected {
		t.Error("Connected = false, want true")
	}
}

func TestHealthCheck(t *testing.T) {
	client := &Client{done: newCloseOnce()}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}
}

func TestPendingCommandsFailOnDisconnect(t *testing.T) {
	client := &Client{
		done:    newCloseOnce(),
		pending: make(map[string]chan commandResult),
	}

	ch := make(chan commandResult, 1)
	client.pendingMu.Lock()
	client.pending["abc"] = ch
	client.pendingMu.Unlock()

	client.failPending(ErrNotConnected)

	select {
	case res := <-ch:
		if !errors.Is(res.err, ErrNotConnected) {
			t.Errorf("pending result error = %v, want ErrNotConnected", res.err)
		}
	default:
		t.Error("pending command not failed")
	}

	client.pendingMu.Lock()
	remaining := len(client.pending)
	client.pendingMu.Unlock()
	if remaining != 0 {
		t.Errorf("pending table has %d entries, want 0", remaining)
	}
}
