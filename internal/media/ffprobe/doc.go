// Package ffprobe wraps ffprobe JSON output for downloaded and uploaded media.
//
// Inspect returns the parsed streams and container format. Duration is the
// forgiving entry point used by extraction: it returns whole seconds and
// reports 0 when ffprobe fails or the container has no duration.
package ffprobe
