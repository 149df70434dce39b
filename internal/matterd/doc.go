// Package matterd manages the Matter server subprocess.
//
// The Matter server (python-matter-server) is the controller that owns
// the fabric credentials and speaks the Matter protocol to devices;
// this process talks to it over a local WebSocket. When management is
// enabled, the hub launches the server itself:
//
//	python3 -m matter_server.server --storage-path <dir> --port <port>
//
// and supervises it for the life of the process: automatic restart on
// failure, a watchdog health check, and SIGTERM-then-SIGKILL on
// shutdown. Startup blocks until the server's WebSocket port accepts
// TCP connections, so callers can dial immediately after Start
// returns.
//
// With management disabled the package is inert and the server is
// expected to be reachable externally at the configured URL.
package matterd
