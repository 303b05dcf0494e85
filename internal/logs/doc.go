// Package logs reads the daemon log file for `shutterbox logs`.
//
// Tail returns the last N complete lines or every complete line after a byte
// offset, optionally waiting for new lines. A partially written trailing line
// is left for the next call so followers never see half a record.
package logs
