package matter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// WebSocket message types for the Matter server JSON protocol.
//
// The server sends exactly one ServerInfo message on connect. After that
// the stream interleaves command responses (correlated by message_id)
// with unsolicited events.

// Commands accepted by the Matter server.
const (
	// CmdStartListening subscribes to events and returns the full node dump.
	CmdStartListening = "start_listening"

	// CmdCommissionWithCode commissions a device from a pairing code.
	CmdCommissionWithCode = "commission_with_code"

	// CmdCommissionOnNetwork commissions an on-network device by setup PIN.
	CmdCommissionOnNetwork = "commission_on_network"

	// CmdDeviceCommand invokes a cluster command on a node endpoint.
	CmdDeviceCommand = "device_command"

	// CmdOpenCommissioningWindow opens a window for sharing a commissioned
	// node with another fabric.
	CmdOpenCommissioningWindow = "open_commissioning_window"

	// CmdRemoveNode decommissions a node from the fabric.
	CmdRemoveNode = "remove_node"
)

// Event names sent by the Matter server.
const (
	// EventAttributeUpdated reports a single attribute change.
	// Data: [node_id, "endpoint/cluster/attribute", value].
	EventAttributeUpdated = "attribute_updated"

	// EventNodeAdded announces a newly commissioned node. Data: node state.
	EventNodeAdded = "node_added"

	// EventNodeUpdated reports node-level changes such as availability.
	// Data: node state.
	EventNodeUpdated = "node_updated"

	// EventNodeRemoved announces a decommissioned node. Data: node ID.
	EventNodeRemoved = "node_removed"

	// EventServerShutdown signals the server is stopping.
	EventServerShutdown = "server_shutdown"
)

// ClientMessage is a command sent to the Matter server.
type ClientMessage struct {
	// MessageID correlates the command with its response.
	MessageID string `json:"message_id"`

	// Command is the command name (see Cmd* constants).
	Command string `json:"command"`

	// Args contains command-specific arguments.
	Args map[string]any `json:"args,omitempty"`
}

// serverMessage is the envelope for any message received from the server.
// Exactly one of the three shapes is populated: a command response
// (MessageID set), an event (Event set), or the server-info greeting
// (neither set; re-decoded into ServerInfo).
type serverMessage struct {
	// Command response fields.
	MessageID string          `json:"message_id"`
	Result    json.RawMessage `json:"result"`
	ErrorCode *int            `json:"error_code"`
	Details   string          `json:"details"`

	// Event fields.
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`

	// SchemaVersion doubles as the server-info discriminator; only the
	// greeting carries it.
	SchemaVersion int `json:"schema_version"`
}

// ServerInfo is the greeting the Matter server sends on connect.
type ServerInfo struct {
	// FabricID identifies the controller's fabric.
	FabricID uint64 `json:"fabric_id"`

	// CompressedFabricID is the short fabric identifier used on the wire.
	CompressedFabricID uint64 `json:"compressed_fabric_id"`

	// SchemaVersion is the server's current API schema version.
	SchemaVersion int `json:"schema_version"`

	// MinSupportedSchemaVersion is the oldest schema the server accepts.
	MinSupportedSchemaVersion int `json:"min_supported_schema_version"`

	// SDKVersion is the underlying Matter SDK version string.
	SDKVersion string `json:"sdk_version"`

	// WifiCredentialsSet reports whether WiFi credentials are stored.
	WifiCredentialsSet bool `json:"wifi_credentials_set"`

	// ThreadCredentialsSet reports whether Thread credentials are stored.
	ThreadCredentialsSet bool `json:"thread_credentials_set"`
}

// Event is an unsolicited message from the Matter server.
type Event struct {
	// Name is the event name (see Event* constants).
	Name string

	// Data is the raw event payload; decode with the typed accessors.
	Data json.RawMessage
}

// NodeState is the server's view of a commissioned node.
type NodeState struct {
	// NodeID is the Matter node identifier.
	NodeID uint64 `json:"node_id"`

	// DateCommissioned is when the node joined the fabric (server format).
	DateCommissioned string `json:"date_commissioned"`

	// LastInterview is when the node was last interviewed.
	LastInterview string `json:"last_interview"`

	// InterviewVersion is the schema version of the last interview.
	InterviewVersion int `json:"interview_version"`

	// Available reports whether the node is currently reachable.
	Available bool `json:"available"`

	// IsBridge reports whether the node is itself a bridge device.
	IsBridge bool `json:"is_bridge"`

	// Attributes holds every attribute value keyed by
	// "endpoint/cluster/attribute" path.
	Attributes map[string]any `json:"attributes"`
}

// AttributeValue returns the value at the given path, if present.
func (n *NodeState) AttributeValue(path AttributePath) (any, bool) {
	v, ok := n.Attributes[path.String()]
	return v, ok
}

// Endpoints returns the distinct endpoint IDs present in the node's
// attribute map, sorted ascending. Paths that fail to parse are skipped.
func (n *NodeState) Endpoints() []uint16 {
	seen := make(map[uint16]struct{})
	for key := range n.Attributes {
		path, err := ParseAttributePath(key)
		if err != nil {
			continue
		}
		seen[path.Endpoint] = struct{}{}
	}

	endpoints := make([]uint16, 0, len(seen))
	for ep := range seen {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })
	return endpoints
}

// attributePathParts is the number of segments in an attribute path.
const attributePathParts = 3

// AttributePath addresses a single attribute on a node.
type AttributePath struct {
	// Endpoint is the endpoint ID on the node.
	Endpoint uint16

	// Cluster is the cluster ID (e.g. 6 for OnOff).
	Cluster uint32

	// Attribute is the cluster-local attribute ID.
	Attribute uint32
}

// ParseAttributePath parses an "endpoint/cluster/attribute" path string.
//
// Parameters:
//   - s: Path string, e.g. "1/6/0"
//
// Returns:
//   - AttributePath: Parsed path
//   - error: ErrInvalidMessage if the string is malformed
func ParseAttributePath(s string) (AttributePath, error) {
	parts := strings.Split(s, "/")
	if len(parts) != attributePathParts {
		return AttributePath{}, fmt.Errorf("%w: attribute path %q", ErrInvalidMessage, s)
	}

	endpoint, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return AttributePath{}, fmt.Errorf("%w: endpoint in %q", ErrInvalidMessage, s)
	}
	cluster, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return AttributePath{}, fmt.Errorf("%w: cluster in %q", ErrInvalidMessage, s)
	}
	attribute, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return AttributePath{}, fmt.Errorf("%w: attribute in %q", ErrInvalidMessage, s)
	}

	return AttributePath{
		Endpoint:  uint16(endpoint),
		Cluster:   uint32(cluster),
		Attribute: uint32(attribute),
	}, nil
}

// String formats the path as "endpoint/cluster/attribute".
func (p AttributePath) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Endpoint, p.Cluster, p.Attribute)
}

// AttributeUpdate is the decoded payload of an attribute_updated event.
type AttributeUpdate struct {
	// NodeID is the node that reported the change.
	NodeID uint64

	// Path addresses the changed attribute.
	Path AttributePath

	// Value is the new attribute value.
	Value any
}

// AttributeUpdate decodes an attribute_updated event payload. The wire
// format is a three-element array: [node_id, path, value].
func (e Event) AttributeUpdate() (AttributeUpdate, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(e.Data, &parts); err != nil {
		return AttributeUpdate{}, fmt.Errorf("%w: attribute update: %w", ErrInvalidMessage, err)
	}
	if len(parts) != attributePathParts {
		return AttributeUpdate{}, fmt.Errorf("%w: attribute update has %d elements, want %d",
			ErrInvalidMessage, len(parts), attributePathParts)
	}

	var update AttributeUpdate
	if err := json.Unmarshal(parts[0], &update.NodeID); err != nil {
		return AttributeUpdate{}, fmt.Errorf("%w: attribute update node ID: %w", ErrInvalidMessage, err)
	}

	var pathStr string
	if err := json.Unmarshal(parts[1], &pathStr); err != nil {
		return AttributeUpdate{}, fmt.Errorf("%w: attribute update path: %w", ErrInvalidMessage, err)
	}
	path, err := ParseAttributePath(pathStr)
	if err != nil {
		return AttributeUpdate{}, err
	}
	update.Path = path

	if err := json.Unmarshal(parts[2], &update.Value); err != nil {
		return AttributeUpdate{}, fmt.Errorf("%w: attribute update value: %w", ErrInvalidMessage, err)
	}

	return update, nil
}

// Node decodes a node_added or node_updated event payload.
func (e Event) Node() (NodeState, error) {
	var node NodeState
	if err := json.Unmarshal(e.Data, &node); err != nil {
		return NodeState{}, fmt.Errorf("%w: node state: %w", ErrInvalidMessage, err)
	}
	return node, nil
}

// NodeID decodes a node_removed event payload.
func (e Event) NodeID() (uint64, error) {
	var id uint64
	if err := json.Unmarshal(e.Data, &id); err != nil {
		return 0, fmt.Errorf("%w: node ID: %w", ErrInvalidMessage, err)
	}
	return id, nil
}

// CommissioningParameters is the result of open_commissioning_window.
type CommissioningParameters struct {
	// SetupPinCode is the temporary PIN for the new commissioner.
	SetupPinCode uint32 `json:"setup_pin_code"`

	// SetupManualCode is the 11-digit manual pairing code.
	SetupManualCode string `json:"setup_manual_code"`

	// SetupQRCode is the MT:-prefixed QR payload.
	SetupQRCode string `json:"setup_qr_code"`
}

// Argument builders for the commands this bridge issues.

// CommissionWithCodeArgs builds arguments for commission_with_code.
func CommissionWithCodeArgs(code string) map[string]any {
	return map[string]any{"code": code}
}

// CommissionOnNetworkArgs builds arguments for commission_on_network.
// The IP address pins commissioning to a specific device; pass an empty
// string to let the server discover the device itself.
func CommissionOnNetworkArgs(setupPinCode uint32, ipAddr string) map[string]any {
	args := map[string]any{"setup_pin_code": setupPinCode}
	if ipAddr != "" {
		args["ip_addr"] = ipAddr
	}
	return args
}

// DeviceCommandArgs builds arguments for device_command.
func DeviceCommandArgs(nodeID uint64, endpointID uint16, clusterID uint32, commandName string, payload map[string]any) map[string]any {
	args := map[string]any{
		"node_id":      nodeID,
		"endpoint_id":  endpointID,
		"cluster_id":   clusterID,
		"command_name": commandName,
	}
	if payload != nil {
		args["payload"] = payload
	}
	return args
}

// OpenCommissioningWindowArgs builds arguments for open_commissioning_window.
func OpenCommissioningWindowArgs(nodeID uint64, timeoutSeconds int) map[string]any {
	return map[string]any{
		"node_id": nodeID,
		"timeout": timeoutSeconds,
	}
}
