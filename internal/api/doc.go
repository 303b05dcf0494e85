// Package api defines wire-format types and converters for the HTTP API.
// It translates queue and outbox models into transport-friendly DTOs so
// clients never couple to internal types.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Payload bytes are never included in listings; only their size is.
package api
