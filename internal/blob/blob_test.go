package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

// exercise runs the shared store behaviour against one driver.
func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	key := "figures/avg_contra_ipsi_psth/a.json"

	info, err := store.Put(ctx, key, bytes.NewReader([]byte(`{"name":"avg"}`)), PutOptions{
		ContentType: ContentTypeJSON,
		Metadata:    map[string]string{"figure": "avg_contra_ipsi_psth"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.Size != 14 || info.ContentType != ContentTypeJSON {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader(nil), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}

	got, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"name":"avg"}` || got.Metadata["figure"] != "avg_contra_ipsi_psth" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}

	if _, err := store.Put(ctx, "figures/other/b.png", bytes.NewReader([]byte("png")), PutOptions{ContentType: ContentTypePNG}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "figures/avg")
	if err != nil || len(list) != 1 || list[0].Key != key {
		t.Fatalf("list: %v %+v", err, list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key != key {
		t.Fatalf("list all: %v %+v", err, all)
	}

	if _, err := store.Head(ctx, "figures/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Put(ctx, "../escape", bytes.NewReader(nil), PutOptions{}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if ok, err := store.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestMemoryDriver(t *testing.T) {
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver")
	}
	exercise(t, store)
	if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}

func TestFilesystemDriver(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	exercise(t, store)
	url, err := store.PresignURL(context.Background(), "figures/x.png", SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign: %v %q", err, url)
	}
	if _, err := store.PresignURL(context.Background(), "figures/x.png", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("EPHYSCORE_BLOB_DRIVER", "memory")
	s, err := Open(ctx)
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("open memory: %v %v", s, err)
	}

	t.Setenv("EPHYSCORE_BLOB_DRIVER", "")
	t.Setenv("EPHYSCORE_BLOB_FS_ROOT", filepath.Join(t.TempDir(), "artifacts"))
	s, err = Open(ctx)
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("open default: %v %v", s, err)
	}

	t.Setenv("EPHYSCORE_BLOB_DRIVER", "s3")
	t.Setenv("EPHYSCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected missing bucket error")
	}

	t.Setenv("EPHYSCORE_BLOB_S3_BUCKET", "figures")
	t.Setenv("EPHYSCORE_BLOB_S3_ACCESS_KEY", "AKIA")
	t.Setenv("EPHYSCORE_BLOB_S3_SECRET_KEY", "SECRET")
	s, err = Open(ctx)
	if err != nil || s.Driver() != DriverS3 {
		t.Fatalf("open s3: %v %v", s, err)
	}

	t.Setenv("EPHYSCORE_BLOB_DRIVER", "gcs")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
