// Package bridge translates Matter backend events into cache state.
//
// The subscriber is the single consumer of the backend event stream.
// Every attribute report passes through one normalisation point (the
// cluster map) before it reaches the device cache, so cached values are
// always in hub units: booleans for power, occupancy, and contact; a
// [0,1] fraction for brightness; Kelvin for colour temperature; °C, %,
// hPa, and lux for the measurement clusters.
//
// # Event flow
//
//	Matter client ──events──► Subscriber ──apply──► device.Store
//	                              │
//	                              └──fan-out──► Observers (API hub,
//	                                            MQTT mirror, telemetry)
//
// Observers only see changes the cache accepted; redundant reports
// (identical values) are suppressed at the store and fan out nothing.
//
// # Ordering
//
// The Matter client delivers events from a single dispatch goroutine
// and the subscriber applies them inline, so updates for one endpoint
// are never reordered.
//
// # Sync
//
// A full node dump (initial subscription or post-reconnect resync) is
// replayed through the same normalise and apply path as live events,
// and nodes absent from the dump are dropped. Occupancy transitions are
// recorded only from live reports; a dump seeds current state without
// fabricating history.
package bridge
