package daemonrun_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"nexus/internal/api"
	"nexus/internal/daemonrun"
	"nexus/internal/testsupport"
)

func TestOpenWiresRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	rt, err := daemonrun.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rt.Close()

	if rt.Store == nil || rt.Blobs == nil || rt.Workflow == nil || rt.Ingest == nil || rt.Search == nil || rt.Chat == nil || rt.Sweeper == nil {
		t.Fatalf("runtime not fully wired: %+v", rt)
	}

	testsupport.NewSubscription(t, rt.Store, "https://blog.example.com", 7)
	queued, err := rt.Sweeper.Sweep(ctx)
	if err != nil || queued != 1 {
		t.Fatalf("Sweep = %d, %v; want 1 queued", queued, err)
	}
	if queued, _ := rt.Sweeper.Sweep(ctx); queued != 0 {
		t.Fatalf("second sweep queued %d", queued)
	}

	handler := rt.Routes(func(context.Context) api.DaemonStatus { return api.DaemonStatus{} })
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestPIDPathUnderLogDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if got := daemonrun.PIDPath(cfg); got != filepath.Join(cfg.Paths.LogDir, "nexus.pid") {
		t.Fatalf("PIDPath = %q", got)
	}
}
