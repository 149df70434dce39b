// Package control translates validated light-control requests into
// backend cluster commands.
//
// The dispatcher owns the write half of the control plane: it checks
// the target exists in the cache, validates ranges locally, and maps
// the request onto OnOff, LevelControl and ColorControl commands.
// Power and brightness are coupled: a brightness of exactly zero always
// powers the light off, and any positive brightness implies power-on
// through MoveToLevelWithOnOff.
//
// Dispatch is fire-and-confirm. Each command waits for the backend's
// synchronous accept or reject, but the resulting attribute state
// reaches the cache asynchronously through the event subscriber.
// Callers must not expect a read immediately after a successful
// SetLight to reflect the new value.
package control
