// Package process provides generic subprocess supervision.
//
// MatterHub uses it to run the python-matter-server controller as a
// managed child process, but nothing here is Matter-specific.
//
// Features:
//   - Start/stop with graceful shutdown (SIGTERM, then SIGKILL)
//   - Automatic restart on failure with an attempt cap
//   - Watchdog health probes that kill a hung process
//   - Line-by-line log capture from subprocess stdout/stderr
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:               "matter-server",
//	    Binary:             "python3",
//	    Args:               []string{"-m", "matter_server.server"},
//	    RestartOnFailure:   true,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
