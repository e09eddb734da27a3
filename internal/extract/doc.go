// Package extract turns a source reference into processable content.
//
// MediaExtractor downloads remote media with yt-dlp, normalizes audio to
// 16 kHz mono PCM WAV with ffmpeg, and measures duration with ffprobe.
// WebExtractor fetches articles (readability, with goquery title fallbacks)
// and RSS/Atom feeds (gofeed). Classify maps a submitted URL to the media
// kind and source category used to pick a processing pipeline.
package extract
