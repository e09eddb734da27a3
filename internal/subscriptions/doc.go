// Package subscriptions turns recurring sources into completed media items.
//
// Syncer.SyncSubscription fetches a subscription's feed or page, asks the
// enrichment model for a bounded list of recent updates, validates and
// deduplicates them, and stores each survivor directly as a completed item
// with origin=subscription. These items never enter the processing pipeline.
//
// Sweeper.Sweep is the daily pass that queues a sync for every enabled
// subscription not checked in the last stale_after_hours.
package subscriptions
