// Package notifier pushes the scripted pipeline run to WebSocket clients.
//
// Every accepted connection gets its own Sequencer walking the schedule from the
// moment the connection was established. Frames reach the socket through the
// Hub, a single goroutine + command channel actor that owns the connection
// registry, and a per-connection writer goroutine that serialises writes and
// keeps the connection alive with pings.
//
// A client that disconnects does not cancel its schedule: the remaining steps
// still fire and are dropped by the Hub because the connection is gone.
// Schedules stop early only when the Notifier itself is stopped.
package notifier
