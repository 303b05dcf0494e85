// Package main hosts the shutterbox CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into IPC calls against
// the daemon. Queue inspection falls back to opening the store directly when
// no daemon answers, so a backlog can be examined on a stopped device. The
// relay subcommand runs the Telegram relay in the foreground.
package main
