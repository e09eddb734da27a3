package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nexus/internal/config"
	"nexus/internal/media/ffprobe"
	"nexus/internal/services"
)

// Download describes audio fetched from a remote source.
type Download struct {
	Path            string
	Title           string
	DurationSeconds int
}

// MediaExtractor wraps yt-dlp, ffmpeg and ffprobe.
type MediaExtractor struct {
	ytdlp       string
	ffmpeg      string
	ffprobe     string
	timeout     time.Duration
	maxDuration time.Duration
	run         CommandRunner
	probe       func(ctx context.Context, binary, path string) int
}

// NewMediaExtractor builds an extractor from the [media] config section.
func NewMediaExtractor(cfg *config.Config) *MediaExtractor {
	return &MediaExtractor{
		ytdlp:       cfg.Media.YTDLPBinary,
		ffmpeg:      cfg.Media.FFmpegBinary,
		ffprobe:     cfg.Media.FFprobeBinary,
		timeout:     time.Duration(cfg.Media.DownloadTimeoutSeconds) * time.Second,
		maxDuration: cfg.MaxDuration(),
		run:         execRunner,
		probe:       ffprobe.Duration,
	}
}

// WithCommandRunner replaces process execution (for tests).
func (e *MediaExtractor) WithCommandRunner(run CommandRunner) *MediaExtractor {
	e.run = run
	return e
}

// WithDurationProbe replaces the ffprobe duration lookup (for tests).
func (e *MediaExtractor) WithDurationProbe(probe func(ctx context.Context, binary, path string) int) *MediaExtractor {
	e.probe = probe
	return e
}

type ytdlpInfo struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Duration          float64 `json:"duration"`
	RequestedDownload []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`
}

// Download fetches the best audio stream for sourceURL into workDir as WAV.
func (e *MediaExtractor) Download(ctx context.Context, sourceURL, workDir string) (Download, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Download{}, fmt.Errorf("ensure work dir: %w", err)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := []string{
		"-x",
		"--audio-format", "wav",
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-progress",
		"--print-json",
		"-o", filepath.Join(workDir, "%(id)s.%(ext)s"),
		"--", sourceURL,
	}
	output, err := e.run(ctx, e.ytdlp, args...)
	if err != nil {
		return Download{}, services.Wrap(services.ErrExternalTool, "extract", "yt-dlp", "download failed", err)
	}

	info, err := parseYTDLPInfo(output)
	if err != nil {
		return Download{}, services.Wrap(services.ErrExternalTool, "extract", "yt-dlp", "parse metadata", err)
	}
	path := locateDownload(workDir, info)
	if path == "" {
		return Download{}, services.Wrap(services.ErrExternalTool, "extract", "yt-dlp", "downloaded audio not found", nil)
	}

	dl := Download{
		Path:            path,
		Title:           strings.TrimSpace(info.Title),
		DurationSeconds: int(math.Round(info.Duration)),
	}
	if dl.Title == "" {
		dl.Title = "Unknown Title"
	}
	if dl.DurationSeconds == 0 {
		dl.DurationSeconds = e.Duration(ctx, path)
	}
	if err := e.CheckDuration(dl.DurationSeconds); err != nil {
		_ = os.Remove(path)
		return Download{}, err
	}
	return dl, nil
}

// yt-dlp prints one JSON object per line; the last complete one wins.
func parseYTDLPInfo(output []byte) (ytdlpInfo, error) {
	var info ytdlpInfo
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &info); err == nil {
			return info, nil
		}
	}
	return info, fmt.Errorf("no metadata in yt-dlp output")
}

func locateDownload(workDir string, info ytdlpInfo) string {
	for _, req := range info.RequestedDownload {
		if candidate := strings.TrimSpace(req.Filepath); candidate != "" {
			wav := strings.TrimSuffix(candidate, filepath.Ext(candidate)) + ".wav"
			if fileExists(wav) {
				return wav
			}
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	if info.ID != "" {
		if wav := filepath.Join(workDir, info.ID+".wav"); fileExists(wav) {
			return wav
		}
		matches, _ := filepath.Glob(filepath.Join(workDir, info.ID+".*"))
		if len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Normalize converts any audio or video input to 16 kHz mono pcm_s16le WAV.
func (e *MediaExtractor) Normalize(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if _, err := e.run(ctx, e.ffmpeg, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", "normalize audio", err)
	}
	if !fileExists(dest) {
		return services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", "normalized output missing", nil)
	}
	return nil
}

// Duration returns whole seconds, or 0 when ffprobe cannot tell.
func (e *MediaExtractor) Duration(ctx context.Context, path string) int {
	return e.probe(ctx, e.ffprobe, path)
}

// CheckDuration rejects media longer than the configured maximum.
func (e *MediaExtractor) CheckDuration(seconds int) error {
	if e.maxDuration <= 0 || seconds <= 0 {
		return nil
	}
	if time.Duration(seconds)*time.Second > e.maxDuration {
		return services.Wrap(services.ErrValidation, "extract", "duration",
			fmt.Sprintf("media is %ds long, limit is %.0f minutes", seconds, e.maxDuration.Minutes()), nil)
	}
	return nil
}
