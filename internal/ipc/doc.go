// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The service is registered as "Shutterbox". Response payloads reuse the HTTP
// API DTOs from internal/api so both transports describe the queue the same
// way. Image bytes travel base64-encoded inside the JSON request.
package ipc
