// Package commissioning admits new devices onto the fabric.
//
// A commissioning attempt is tracked as a session that moves through a
// fixed lifecycle:
//
//	idle ──▶ payload_validated ──▶ awaiting_backend_ack ──▶ node_added ──▶ bound
//	              │                        │                    │
//	              ▼                        ▼                    ▼
//	            failed                  failed               failed
//
// # Validation
//
// Setup codes are decoded locally before anything is sent to the
// backend: an 11-digit manual pairing code or an "MT:"-prefixed QR
// payload, each yielding the setup PIN and discriminator. Malformed
// codes fail synchronously with ErrInvalidCode.
//
// # Node arrival
//
// After the code is forwarded, the node can surface through two paths:
// the backend's command result, which carries the interviewed node, and
// the event subscriber's announcement once the node's devices are in
// the cache. The coordinator accepts whichever lands first and ignores
// the other. If the command result wins but the cache has no devices
// for the node yet, binding waits for the announcement.
//
// # Naming
//
// A requested name is stashed against the session and assigned only
// after the canonical device ID is known. Naming failures are
// non-fatal: the device stays commissioned and reachable under its
// canonical ID, the result carries a warning, and the session ends
// failed with the naming sub-failure. A session that times out releases
// its pending name; a device joining late keeps its canonical ID but
// the name is never applied.
package commissioning
