// Package api exposes the HTTP gateway for submissions, job status, the
// media archive, subscriptions and search.
//
// # Key Types
//
// Options: collaborators the router needs (store, ingest, search, status).
//
// DaemonStatus: daemon running state, workflow summary and dependency checks.
//
// ErrorResponse: the body of every non-2xx reply.
//
// # Converters
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// Routes live under /api and are built on gin. Service errors are classified
// with the services markers: validation -> 400, not found -> 404,
// conflict -> 409, everything else -> 500. DTOs use snake_case JSON tags to
// match the stored models. When an API token is configured every /api route
// except /api/health requires "Authorization: Bearer <token>".
package api
