// Package pipeline drives one processing job through its stage chain.
//
// The Orchestrator picks a chain once per job from the media item's source
// category: web and feed URLs run ExtractWeb, Enrich and Finalize, while audio
// sources run ExtractMedia, Deduplicate, Transcribe, Enrich and Finalize.
// Every stage re-reads the job and media rows, calls one collaborator, and
// commits before the next stage starts, so the store is the only shared
// state between stages.
//
// Stages hand a Result to their successor. Continue lets the chain proceed;
// ShortCircuit, produced when Deduplicate links the item to an already
// completed one, makes the remaining stages pass through untouched until
// Finalize, which never overwrites the duplicate status. A stage error is
// fatal for the job: the job and media are marked error and the chain stops.
// Retrying is left to the caller, which creates a fresh job.
package pipeline
