package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFSBlobStorePutGet(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBlobStore(filepath.Join(dir, "nested", "store"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if err := b.Put(ctx, "blobs/a.bin", strings.NewReader("hello"), 5, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := b.Get(ctx, "blobs/a.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "hello" {
		t.Fatalf("got %q want hello", got)
	}

	info, err := os.Stat(b.Location("blobs/a.bin"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o640 {
		t.Fatalf("perm got %o want 640", perm)
	}
}

func TestFSBlobStoreMissing(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	ctx := context.Background()

	if _, err := b.Get(ctx, "blobs/missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("got %v want ErrBlobNotFound", err)
	}
	ok, err := b.Exists(ctx, "blobs/missing")
	if err != nil || ok {
		t.Fatalf("exists got (%v,%v) want (false,nil)", ok, err)
	}
	if err := b.Remove(ctx, "blobs/missing"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}

func TestFSBlobStoreRejectsEscapingKeys(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	for _, key := range []string{"", "../x", "blobs/../../x", "/etc/passwd"} {
		if err := b.Put(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

type erroringReader struct{}

func (erroringReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestFSBlobStoreFailedPutLeavesNothing(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	ctx := context.Background()

	if err := b.Put(ctx, "blobs/a.bin", erroringReader{}, 1, ""); err == nil {
		t.Fatal("expected error")
	}
	list, err := b.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no blobs, got %+v", list)
	}
	entries, _ := os.ReadDir(filepath.Dir(b.Location("blobs/a.bin")))
	if len(entries) != 0 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestFSBlobStoreCancelledContext(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Put(ctx, "blobs/a.bin", strings.NewReader("hello"), 5, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestFSBlobStoreList(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	ctx := context.Background()
	_ = b.Put(ctx, "blobs/a.bin", strings.NewReader("a"), 1, "")
	_ = b.Put(ctx, "meta/a.json", strings.NewReader("{}"), 2, "")

	list, err := b.List(ctx, "blobs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "blobs/a.bin" || list[0].Size != 1 {
		t.Fatalf("unexpected list %+v", list)
	}

	empty, err := b.List(ctx, "nothing/")
	if err != nil || len(empty) != 0 {
		t.Fatalf("list missing prefix got (%v,%v)", empty, err)
	}
}

func TestFSBlobStorePing(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFSBlobStore(dir)
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = os.RemoveAll(dir)
	if err := b.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail once the directory is gone")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://minio:9000", "minio:9000", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"http://minio:9000/foo", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("expected error for input %q", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.in, err)
		}
		if ep != tt.wantEndpoint || secure != tt.wantSecure {
			t.Fatalf("normaliseEndpoint(%q) = (%q,%v), want (%q,%v)", tt.in, ep, secure, tt.wantEndpoint, tt.wantSecure)
		}
	}
}

func TestNewMinioBlobStoreIncompleteConfig(t *testing.T) {
	_, err := NewMinioBlobStore(context.Background(), MinioConfig{Endpoint: "minio:9000"})
	if err == nil {
		t.Fatal("expected error for incomplete config")
	}
}

func TestSweepOrphans(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	fs := NewFileStore(b)
	ctx := context.Background()

	kept := storePDF(t, fs)
	orphanID := "0a0b0c0d-1111-4222-8333-444455556666"
	_ = b.Put(ctx, "blobs/"+orphanID+".pdf", strings.NewReader("x"), 1, "")
	_ = b.Put(ctx, "blobs/not-an-id.bin", strings.NewReader("x"), 1, "")

	// Everything is too fresh to touch.
	n, err := SweepOrphans(ctx, b, time.Hour, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("fresh sweep got (%d,%v) want (0,nil)", n, err)
	}

	n, err = SweepOrphans(ctx, b, time.Hour, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed got %d want 1", n)
	}
	if ok, _ := b.Exists(ctx, "blobs/"+orphanID+".pdf"); ok {
		t.Fatal("orphan still present")
	}
	if ok, _ := fs.Exists(ctx, kept.ID); !ok {
		t.Fatal("file with metadata was swept")
	}
	if ok, _ := b.Exists(ctx, "blobs/not-an-id.bin"); !ok {
		t.Fatal("foreign blob should be left alone")
	}
}

func TestStartSweepJobStopsOnCancel(t *testing.T) {
	b, _ := NewFSBlobStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartSweepJob(ctx, SweepConfig{Enabled: true, Interval: 10 * time.Millisecond, MinAge: time.Hour, Blobs: b})
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep job did not stop")
	}
}
