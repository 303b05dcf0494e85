// Package queueaccess lets CLI commands work on the pending backlog whether or
// not the daemon is running: through IPC when a daemon answers, otherwise
// against the store on disk.
package queueaccess
