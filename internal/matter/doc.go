// Package matter implements the WebSocket client for the Matter server.
//
// The Matter server (python-matter-server) owns the Matter fabric and
// exposes a JSON command/event protocol over a single WebSocket. This
// package provides connectivity, command correlation, and ordered event
// delivery; it knows nothing about devices or HTTP.
//
// # Architecture
//
//	┌─────────────────┐            ┌─────────────────┐
//	│    MatterHub    │  WebSocket │  Matter Server  │   Matter
//	│   (this pkg)    │◄──────────►│   (subprocess)  │◄────────► Fabric
//	└─────────────────┘            └─────────────────┘
//
// # Protocol
//
// On connect the server sends a single server-info greeting. After that
// the stream interleaves:
//
//   - Command responses: {"message_id", "result"} on success or
//     {"message_id", "error_code", "details"} on failure, correlated with
//     the command's message_id.
//   - Events: {"event", "data"}. attribute_updated carries
//     [node_id, "endpoint/cluster/attribute", value]; node_added and
//     node_updated carry a full node state; node_removed carries the
//     node ID.
//
// The start_listening command subscribes to events; its result is the
// full dump of commissioned nodes.
//
// # Ordering
//
// A single dispatch goroutine delivers events in arrival order, so
// per-endpoint attribute sequences are never observed out of order.
// After a reconnect the client re-subscribes and delivers the fresh node
// dump through the sync callback before any later event.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use from multiple
// goroutines.
//
// # References
//
//   - Matter server: https://github.com/home-assistant-libs/python-matter-server
package matter
