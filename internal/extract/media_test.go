package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"nexus/internal/services"
	"nexus/internal/testsupport"
)

func TestDownloadParsesMetadataAndLocatesWAV(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()

	var gotArgs []string
	extractor := NewMediaExtractor(cfg).WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		if err := os.WriteFile(filepath.Join(workDir, "vid123.wav"), []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write download: %v", err)
		}
		return []byte("[info] noise\n{\"id\":\"vid123\",\"title\":\"Talk\",\"duration\":125.4}\n"), nil
	})

	dl, err := extractor.Download(context.Background(), "https://youtu.be/vid123", workDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if dl.Title != "Talk" || dl.DurationSeconds != 125 {
		t.Fatalf("unexpected download %+v", dl)
	}
	if dl.Path != filepath.Join(workDir, "vid123.wav") {
		t.Fatalf("unexpected path %s", dl.Path)
	}
	for _, want := range []string{"-x", "--no-playlist", "--print-json"} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("missing %s in %v", want, gotArgs)
		}
	}
}

func TestDownloadRejectsOverlongMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.MaxDurationMinutes = 1
	workDir := t.TempDir()

	extractor := NewMediaExtractor(cfg).WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		_ = os.WriteFile(filepath.Join(workDir, "long.wav"), []byte("RIFF"), 0o644)
		return []byte(`{"id":"long","title":"Long","duration":600}`), nil
	})

	_, err := extractor.Download(context.Background(), "https://youtu.be/long", workDir)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(workDir, "long.wav")); !os.IsNotExist(statErr) {
		t.Fatal("expected rejected download to be removed")
	}
}

func TestDownloadFallsBackToProbeDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	workDir := t.TempDir()

	extractor := NewMediaExtractor(cfg).
		WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			_ = os.WriteFile(filepath.Join(workDir, "x.wav"), []byte("RIFF"), 0o644)
			return []byte(`{"id":"x"}`), nil
		}).
		WithDurationProbe(func(ctx context.Context, binary, path string) int { return 42 })

	dl, err := extractor.Download(context.Background(), "https://youtu.be/x", workDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if dl.DurationSeconds != 42 || dl.Title != "Unknown Title" {
		t.Fatalf("unexpected download %+v", dl)
	}
}

func TestDownloadToolFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	extractor := NewMediaExtractor(cfg).WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	_, err := extractor.Download(context.Background(), "https://youtu.be/x", t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestNormalizeUsesWhisperFriendlyFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dest := filepath.Join(t.TempDir(), "out.wav")
	var gotArgs []string
	extractor := NewMediaExtractor(cfg).WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return nil, os.WriteFile(dest, []byte("RIFF"), 0o644)
	})
	if err := extractor.Normalize(context.Background(), "in.mp3", dest); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for _, pair := range [][2]string{{"-ar", "16000"}, {"-ac", "1"}, {"-c:a", "pcm_s16le"}} {
		idx := slices.Index(gotArgs, pair[0])
		if idx < 0 || idx+1 >= len(gotArgs) || gotArgs[idx+1] != pair[1] {
			t.Fatalf("expected %s %s in %v", pair[0], pair[1], gotArgs)
		}
	}
}
