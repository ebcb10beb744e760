// Package api provides the HTTP management API and WebSocket server for
// Tagwatch Core.
//
// The REST endpoints under /api/v1 edit connection, tag and rule definitions
// and call into the monitor so running sessions follow the edits. The
// WebSocket hub is the UI's event sink: every client receives liveData and
// alarm events unless it unsubscribes.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
