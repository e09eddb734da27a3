// Package ingest is the write boundary shared by the HTTP API and the CLI.
//
// It turns submissions into rows and queued work: a URL or an uploaded file
// becomes a pending MediaItem plus a pending ProcessingJob whose pipeline
// task is enqueued immediately. Retries create a fresh job and leave the
// failed one untouched. Subscription management (create, update, delete,
// manual sync and YAML import) lives here too, so validation rules such as
// the 1-365 day window are enforced in one place.
package ingest
