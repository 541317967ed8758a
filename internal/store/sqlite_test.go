package store_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/attrib-app/attrib/internal/store"
)

func openStore(t *testing.T, dsn string) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestSaveAndGetUpload(t *testing.T) {
	s := openStore(t, ":memory:")
	ctx := context.Background()

	data := []byte("channel,conversion\nA,1\n")
	saved, err := s.SaveUpload(ctx, "journeys.csv", data)
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected an upload id")
	}
	if saved.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), saved.Size)
	}

	got, err := s.GetUpload(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetUpload failed: %v", err)
	}
	if got.Filename != "journeys.csv" {
		t.Errorf("expected filename 'journeys.csv', got %s", got.Filename)
	}
	if !bytes.Equal(got.Data, data) {
		t.Errorf("expected data %q, got %q", data, got.Data)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestGetUpload_NotFound(t *testing.T) {
	s := openStore(t, ":memory:")

	_, err := s.GetUpload(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUpload(t *testing.T) {
	s := openStore(t, ":memory:")
	ctx := context.Background()

	saved, err := s.SaveUpload(ctx, "a.csv", []byte("x"))
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}

	if err := s.DeleteUpload(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteUpload failed: %v", err)
	}
	if err := s.DeleteUpload(ctx, saved.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := openStore(t, ":memory:")
	ctx := context.Background()

	for _, name := range []string{"a.csv", "b.csv"} {
		if _, err := s.SaveUpload(ctx, name, []byte(name)); err != nil {
			t.Fatalf("SaveUpload failed: %v", err)
		}
	}

	n, err := s.PurgeExpired(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing purged, got %d", n)
	}

	n, err = s.PurgeExpired(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}

	count, err := s.CountUploads(ctx)
	if err != nil {
		t.Fatalf("CountUploads failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty cache, got %d", count)
	}
}

func TestOpen_FileDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s := openStore(t, path)
	ctx := context.Background()

	if _, err := s.SaveUpload(ctx, "a.csv", []byte("x")); err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}
	count, err := s.CountUploads(ctx)
	if err != nil {
		t.Fatalf("CountUploads failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 upload, got %d", count)
	}
}
