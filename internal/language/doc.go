// Package language normalizes the transcription language setting to the
// ISO 639-1 codes speech-to-text backends accept.
package language
