// Package store persists media items, processing jobs, subscriptions and
// queued tasks in SQLite (default) or PostgreSQL.
//
// Open applies the embedded golang-migrate migrations and returns a Store
// whose methods re-read and commit rows on every call; nothing is cached.
// Timestamps are stored as fixed-width UTC text so the same SQL compares them
// correctly on both engines. Tags, transcripts and embeddings are stored as
// JSON text.
//
// GetX lookups return (nil, nil) when a row does not exist.
package store
