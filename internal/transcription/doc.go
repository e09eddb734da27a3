// Package transcription converts normalized WAV audio into text and speaker turns.
//
// Two backends implement Transcriber and are chosen by transcription.mode:
//   - api: an OpenAI-compatible /audio/transcriptions endpoint queried with
//     response_format=verbose_json. Segments become turns labelled "Speaker".
//   - local: WhisperX run through uvx, reading the JSON it writes next to the
//     input. Diarized segments keep their speaker labels.
//
// Both return the full text plus ordered turns. A response without segments
// becomes a single turn spanning the whole file.
package transcription
