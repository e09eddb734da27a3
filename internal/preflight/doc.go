// Package preflight provides readiness checks for the external tools,
// services and filesystem paths nexus depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll and CheckSystemDeps before starting workers.
//     A failed critical check aborts startup so tasks never fail one by one
//     on a broken host.
//   - The CLI "nexus status" command uses the individual checks to display
//     service health.
//
// Checks for optional backends are gated by configuration: the WhisperX
// runner is only required in local transcription mode and fpcalc only when
// chromaprint fingerprinting is selected.
package preflight
