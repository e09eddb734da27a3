package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nexus/internal/api"
	"nexus/internal/daemonctl"
	"nexus/internal/testsupport"
)

func TestClientStatusSendsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 42})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = strings.TrimPrefix(server.URL, "http://")
	cfg.Paths.APIToken = "secret"
	client, err := daemonctl.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil || !status.Running || status.PID != 42 {
		t.Fatalf("Status = %+v, %v", status, err)
	}

	cfg.Paths.APIToken = "wrong"
	client, _ = daemonctl.NewClient(cfg)
	if _, err := client.Status(context.Background()); err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestStatusSnapshotFallsBackOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.MustOpenStore(t, cfg)
	server := httptest.NewServer(http.NotFoundHandler())
	bind := strings.TrimPrefix(server.URL, "http://")
	server.Close()
	cfg.Paths.APIBind = bind

	status, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running || status.Driver != cfg.Database.Driver || len(status.Dependencies) == 0 {
		t.Fatalf("unexpected offline snapshot %+v", status)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	if _, err := daemonctl.ReadPID(filepath.Join(dir, "missing.pid")); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected not running, got %v", err)
	}
	path := filepath.Join(dir, "nexus.pid")
	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, err := daemonctl.ReadPID(path); err != nil || pid != 1234 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ReadPID(path); err == nil {
		t.Fatal("expected parse error")
	}
}
