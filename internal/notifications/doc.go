// Package notifications delivers job and subscription events via pluggable
// notifiers.
//
// Two transports exist: ntfy for human-facing alerts (completions, failures,
// subscription syncs) and redis pub/sub for machine consumers that follow job
// progress. NewService wires whichever transports are configured and falls back
// to a no-op when neither is. Callers depend only on the Service interface and
// describe events with a Payload map.
package notifications
