// Package shutdown provides graceful shutdown for autosave-server.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM, and SIGHUP for reloads)
//   - Timeout-bounded hooks run in reverse registration order
//   - Programmatic shutdown via Trigger
//
// Usage:
//
//	h := shutdown.NewHandler(15*time.Second, logger)
//	h.OnShutdown("storage", engine.Close)
//	err := h.Wait()
package shutdown
