// Package config loads, normalizes, and validates nexus configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATABASE_URL, MINIO_ENDPOINT and LLM_API_KEY. The Config type centralizes
// every knob the daemon and CLI need so store, blob, model and task queue
// settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
