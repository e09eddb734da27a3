// Package workflow runs durable background tasks from the store's task table.
//
// The Manager owns a pool of workers that poll the table, claim one queued
// task at a time and dispatch it to the Handler registered for its kind
// (process_media, sync_subscription). Each run is bounded by a soft limit,
// delivered to the handler as a context deadline, and a hard limit after
// which the worker abandons the handler and records the task as failed.
//
// Running tasks refresh a heartbeat; a reclaimer requeues tasks whose
// heartbeat expired, so delivery is at-least-once and handlers must be
// idempotent. The pipeline handler is: a job already in a terminal state is
// left untouched.
package workflow
