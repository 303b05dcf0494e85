// Package daemon is the lifecycle controller of the shutterbox process.
//
// A Daemon owns the single-instance flock lock and one actor goroutine. All
// triggers arrive as messages on the actor's inbox: NewCapture from the IPC
// and HTTP capture paths, ConnectivityRestored from the netlink monitor and
// the reachability prober, and PeriodicSync from the cron scheduler. The actor
// never blocks on delivery; it spawns a tracked task per message that calls
// into the outbox and logs whatever went wrong.
//
// Keep orchestration here. Delivery rules live in outbox, persistence in
// queue, and transport in delivery.
package daemon
