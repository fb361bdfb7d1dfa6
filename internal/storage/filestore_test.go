package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-transfer/internal/transfer"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := NewFSBlobStore(dir)
	require.NoError(t, err)
	return NewFileStore(blobs), dir
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func storePDF(t *testing.T, fs *FileStore) StoredFile {
	t.Helper()
	rec, err := fs.Store(context.Background(), bytes.NewReader(pdfBytes), StoreInput{
		OriginalName: "report.pdf",
		MIME:         "application/pdf",
		Size:         int64(len(pdfBytes)),
		Hash:         digest(pdfBytes),
		OwnerID:      "token-1",
	})
	require.NoError(t, err)
	return rec
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	fs, dir := newTestFileStore(t)
	ctx := context.Background()

	rec := storePDF(t, fs)
	assert.Equal(t, rec.ID+".pdf", rec.StoredName)
	assert.Equal(t, "token-1", rec.OwnerID)
	assert.False(t, rec.UploadedAt.IsZero())

	got, err := fs.Retrieve(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Hash, got.Hash)
	assert.Equal(t, rec.OriginalName, got.OriginalName)
	assert.True(t, rec.UploadedAt.Equal(got.UploadedAt))

	p, err := fs.GetPath(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "blobs", rec.StoredName), p)

	onDisk, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, got.Hash, digest(onDisk))

	_, rc, err := fs.Open(ctx, rec.ID)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, b)
}

func TestExistsLifecycle(t *testing.T) {
	fs, _ := newTestFileStore(t)
	ctx := context.Background()

	ok, err := fs.Exists(ctx, "7f1d3c1e-1a2b-4c3d-9e8f-0123456789ab")
	require.NoError(t, err)
	assert.False(t, ok, "exists before store")

	rec := storePDF(t, fs)
	ok, err = fs.Exists(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Delete(ctx, rec.ID))
	ok, err = fs.Exists(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok, "exists after delete")

	_, err = fs.Retrieve(ctx, rec.ID)
	assert.ErrorIs(t, err, transfer.ErrNotFound)
	assert.ErrorIs(t, fs.Delete(ctx, rec.ID), transfer.ErrNotFound)
}

func TestExistsNeedsBothArtifacts(t *testing.T) {
	fs, dir := newTestFileStore(t)
	ctx := context.Background()

	rec := storePDF(t, fs)
	require.NoError(t, os.Remove(filepath.Join(dir, "blobs", rec.StoredName)))

	ok, err := fs.Exists(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = fs.Open(ctx, rec.ID)
	assert.ErrorIs(t, err, transfer.ErrNotFound)
}

func TestRetrieveRejectsNonUUID(t *testing.T) {
	fs, _ := newTestFileStore(t)
	for _, id := range []string{"", "../meta/x", "not-a-uuid", "7F1D3C1E-1A2B-4C3D-9E8F-0123456789AB"} {
		_, err := fs.Retrieve(context.Background(), id)
		if !errors.Is(err, transfer.ErrNotFound) {
			t.Fatalf("Retrieve(%q) got %v want ErrNotFound", id, err)
		}
	}
}

func TestStoreRejectsDigestMismatch(t *testing.T) {
	fs, dir := newTestFileStore(t)

	_, err := fs.Store(context.Background(), bytes.NewReader(pdfBytes), StoreInput{
		OriginalName: "report.pdf",
		MIME:         "application/pdf",
		Size:         int64(len(pdfBytes)),
		Hash:         strings.Repeat("0", 64),
	})
	require.ErrorIs(t, err, transfer.ErrInternalStorage)

	entries, _ := os.ReadDir(filepath.Join(dir, "blobs"))
	assert.Empty(t, entries, "mismatched bytes must not be kept")
	_, err = os.Stat(filepath.Join(dir, "meta"))
	assert.True(t, os.IsNotExist(err), "no metadata should be written")
}

func TestUniqueIDs(t *testing.T) {
	fs, _ := newTestFileStore(t)
	a := storePDF(t, fs)
	b := storePDF(t, fs)
	assert.NotEqual(t, a.ID, b.ID)
}

type failingBlobs struct {
	BlobStore
}

func (failingBlobs) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("disk full")
}

func (failingBlobs) Remove(context.Context, string) error { return nil }

func TestStoreWrapsBackendFailure(t *testing.T) {
	fs := NewFileStore(failingBlobs{})
	_, err := fs.Store(context.Background(), bytes.NewReader(pdfBytes), StoreInput{
		MIME: "application/pdf",
		Size: int64(len(pdfBytes)),
		Hash: digest(pdfBytes),
	})
	require.ErrorIs(t, err, transfer.ErrInternalStorage)
}
