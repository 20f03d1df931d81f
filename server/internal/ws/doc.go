// Package ws implements the WebSocket hub that streams counter status to
// dashboards.
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast loop: it builds and pushes the status
// payload every interval and after each Notify call, and blocks until ctx is
// cancelled, then closes all active connections. Building the payload ticks
// the shift tracker, so shifts are finalized at their boundaries even when
// no pulses arrive.
// Hub.Notify() asks for an immediate broadcast without blocking; pending
// notifications coalesce.
// Hub.Command(action) pushes a device command to every client.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// status immediately on connect, then streams updates.
//
// Messages sent to clients:
//
//	{"event": "status",  "data": {"count": 0, "current_shift": "...", "history": [...], "timestamp": "..."}}
//	{"event": "command", "data": {"action": "click"}}
//
// Clients whose outgoing buffer is full are disconnected. The upgrader
// accepts all origins. The endpoint is mounted at /ws/stream by the server.
package ws
