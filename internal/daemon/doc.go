// Package daemon coordinates the long-running nexus process.
//
// It wires the task worker pool, the cron-driven subscription sweep and the
// HTTP gateway into a single lifecycle under an errgroup, with flock-based
// locking to prevent multiple instances against the same data directory.
// Startup runs preflight checks first: unusable directories or an unreachable
// database abort the start, while missing media tools are logged with their
// impact and left to fail the stages that need them.
//
// Keep orchestration logic here: pipeline stages, sync and ingestion live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
