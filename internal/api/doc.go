// Package api implements the HTTP façade and WebSocket event hub for
// MatterHub.
//
// This package provides:
//   - REST endpoints over the device cache (/api/devices, /api/lights,
//     /api/sensors, /api/sensor)
//   - Naming, commissioning, sharing, and control endpoints (/api/name,
//     /api/register, /api/share, /api/set)
//   - A WebSocket hub at /api/events broadcasting device lifecycle events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits between HTTP consumers and the in-memory device cache.
// Reads never touch the Matter backend: every GET is served from the
// cache, so the API stays responsive while the backend link is down.
// Writes (naming, commissioning, control) resolve identities locally and
// dispatch to the backend, mapping each domain error to a fixed HTTP
// status in one place.
//
// The WebSocket hub is fed directly by the event subscriber: the Hub
// satisfies the subscriber's observer interface, so cache changes reach
// browser clients without a broker round-trip.
//
// # Identity
//
// Every endpoint that takes an id parameter accepts either a canonical
// device ID (dev_{node}_{endpoint}) or a previously assigned alias.
//
// The façade is an unauthenticated local bridge; deployments that expose
// it beyond the host network are expected to front it with their own
// access control.
package api
