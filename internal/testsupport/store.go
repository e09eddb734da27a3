package testsupport

import (
	"context"
	"testing"

	"nexus/internal/config"
	"nexus/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewMedia inserts a media item and a pending job for it.
func NewMedia(t testing.TB, st *store.Store, item *store.MediaItem) (*store.MediaItem, *store.ProcessingJob) {
	t.Helper()

	ctx := context.Background()
	if err := st.CreateMedia(ctx, item); err != nil {
		t.Fatalf("store.CreateMedia: %v", err)
	}
	job, err := st.CreateJob(ctx, item.ID, 0)
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return item, job
}

// NewSubscription inserts an enabled subscription.
func NewSubscription(t testing.TB, st *store.Store, url string, periodDays int) *store.Subscription {
	t.Helper()

	sub := &store.Subscription{
		URL:         url,
		Title:       url,
		Kind:        "site",
		PeriodDays:  periodDays,
		SyncEnabled: true,
	}
	if err := st.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("store.CreateSubscription: %v", err)
	}
	return sub
}
