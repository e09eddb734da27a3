package transcription

import (
	"context"
	"fmt"
	"strings"

	"nexus/internal/config"
	"nexus/internal/media/wav"
	"nexus/internal/services"
	"nexus/internal/store"
)

// DefaultSpeaker labels turns from backends without diarization.
const DefaultSpeaker = "Speaker"

// Result holds a finished transcript.
type Result struct {
	Text  string
	Turns []store.TranscriptTurn
}

// Transcriber turns an audio file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// New returns the backend selected by configuration.
func New(cfg *config.Config) (Transcriber, error) {
	switch cfg.Transcription.Mode {
	case config.TranscriptionAPI:
		return NewAPIClient(cfg), nil
	case config.TranscriptionLocal:
		return NewWhisperX(cfg), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "new",
			fmt.Sprintf("unsupported mode %q", cfg.Transcription.Mode), nil)
	}
}

type segment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// buildResult joins segment text and maps segments to turns. With no usable
// segments, fullText becomes one turn covering [0, duration].
func buildResult(fullText string, segments []segment, duration float64) Result {
	turns := make([]store.TranscriptTurn, 0, len(segments))
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = DefaultSpeaker
		}
		turns = append(turns, store.TranscriptTurn{Speaker: speaker, Text: text, Start: seg.Start, End: seg.End})
		parts = append(parts, text)
	}

	fullText = strings.TrimSpace(fullText)
	if fullText == "" {
		fullText = strings.Join(parts, " ")
	}
	if len(turns) == 0 && fullText != "" {
		turns = append(turns, store.TranscriptTurn{Speaker: DefaultSpeaker, Text: fullText, Start: 0, End: duration})
	}
	return Result{Text: fullText, Turns: turns}
}

// fileDuration returns the WAV length in seconds, or 0 for unreadable input.
func fileDuration(path string) float64 {
	info, err := wav.InspectFile(path)
	if err != nil {
		return 0
	}
	return info.Duration()
}
