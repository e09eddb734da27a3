package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"nexus/internal/config"
	"nexus/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "missing"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", file)
	if result.Passed {
		t.Fatal("expected failure for a regular file")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "good-key", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_BadKeyAndMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if result := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "bad", BaseURL: srv.URL, Model: "m"}); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if result := CheckLLM(context.Background(), "LLM", config.LLMConfig{}); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckDatabase(t *testing.T) {
	ok := CheckDatabase(context.Background(), "sqlite", pingFunc(func(context.Context) error { return nil }))
	if !ok.Passed || !ok.Critical {
		t.Fatalf("expected critical pass, got %+v", ok)
	}
	bad := CheckDatabase(context.Background(), "postgres", pingFunc(func(context.Context) error { return errors.New("refused") }))
	if bad.Passed || len(Failed([]Result{ok, bad})) != 1 {
		t.Fatalf("expected one failed critical check, got %+v", bad)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_DirectoriesOnlyWithoutLLMKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	// data + temp + local blob directory
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed || !r.Critical {
			t.Errorf("check %q: passed=%v critical=%v (%s)", r.Name, r.Passed, r.Critical, r.Detail)
		}
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_MissingTempDirIsCritical(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.Storage.LocalDir, 0o755); err != nil {
		t.Fatal(err)
	}

	failed := Failed(RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Temp directory" {
		t.Fatalf("expected temp directory failure, got %+v", failed)
	}
}

func TestCheckSystemDepsFollowsConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("yt-dlp", "ffmpeg", "ffprobe"))
	cfg.Fingerprint.Method = config.FingerprintPCM
	cfg.Transcription.Mode = config.TranscriptionAPI

	statuses := CheckSystemDeps(cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Available {
			t.Fatalf("expected %s to resolve from stub PATH: %s", s.Name, s.Detail)
		}
	}

	cfg.Fingerprint.Method = config.FingerprintChromaprint
	cfg.Fingerprint.FpcalcBinary = "definitely-missing-fpcalc"
	cfg.Transcription.Mode = config.TranscriptionLocal
	statuses = CheckSystemDeps(cfg)
	if len(statuses) != 5 {
		t.Fatalf("expected fpcalc and uvx to be added, got %d", len(statuses))
	}
	if statuses[3].Available {
		t.Fatal("expected missing fpcalc")
	}
}
