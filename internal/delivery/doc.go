// Package delivery sends captured images to the configured delivery sink.
//
// A delivery is a single multipart POST; the sink is a black box that either
// answers 2xx (delivered) or does not. Every other outcome, including
// transport errors and timeouts, is a *Failure. The client never retries:
// retry policy belongs to the outbox, which persists failed captures and
// flushes them later.
package delivery
