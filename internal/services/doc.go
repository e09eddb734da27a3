// Package services defines shared utilities consumed by pipeline stages and
// their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp job, media, subscription and task identifiers
//     plus stage names and correlation IDs for logging.
//   - Structured error markers plus the Wrap helper, so stage failures keep a
//     classifiable cause while producing a human-readable job error message.
//   - Retry classification shared by the enrichment service and the task
//     worker pool.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
