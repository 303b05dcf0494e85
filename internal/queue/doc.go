// Package queue persists captured images that could not be delivered yet.
//
// Two backends implement the Backend contract: Store keeps items in SQLite
// (the default) and PebbleStore keeps them in a Pebble LSM. Both assign
// strictly increasing IDs, list items in insertion order, and commit every
// Put, Remove, ClearThrough and Clear as one synchronous atomic write, so a
// process crash never leaves a half-written or half-removed item behind.
//
// The store is the single source of truth for outstanding work. Items are
// written once and deleted once; nothing updates them in place. Every storage
// failure surfaces as a *StorageError so callers can match ErrStorage without
// caring which backend is configured.
//
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package queue
