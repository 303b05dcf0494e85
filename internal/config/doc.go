// Package config loads, normalizes, and validates shutterbox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHUTTERBOX_SINK_URL and TELEGRAM_BOT_TOKEN (a .env file in the working
// directory is loaded first). The Config type centralizes every knob the
// daemon, relay and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
