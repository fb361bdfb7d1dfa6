// filestore.go - Id-addressed file storage with a JSON metadata sidecar.
//
// Layout inside the blob store:
//
//	blobs/<id><ext>   file bytes
//	meta/<id>.json    StoredFile record, the source of truth
//
// A file exists only when both artifacts exist. Bytes are written before
// metadata and deleted after it, so a visible record always has its bytes.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"secure-transfer/internal/transfer"
)

const (
	blobPrefix = "blobs/"
	metaPrefix = "meta/"
)

// StoredFile is the metadata record kept for every accepted upload.
type StoredFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"stored_name"`
	MIME         string    `json:"mime"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	UploadedAt   time.Time `json:"uploaded_at"`
	OwnerID      string    `json:"owner_id"`
}

// StoreInput carries the already-validated attributes of an upload.
type StoreInput struct {
	OriginalName string
	MIME         string
	Size         int64
	Hash         string
	OwnerID      string
}

// FileStore persists uploads under generated ids.
type FileStore struct {
	blobs BlobStore
	now   func() time.Time
}

// NewFileStore wraps a blob backend.
func NewFileStore(blobs BlobStore) *FileStore {
	return &FileStore{blobs: blobs, now: time.Now}
}

func blobKey(storedName string) string { return blobPrefix + storedName }

func metaKey(id string) string { return metaPrefix + id + ".json" }

// validID reports whether id is a canonical UUID. Anything else cannot name
// a stored file and never reaches the backend.
func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

// Store writes content and its metadata. The digest of the bytes actually
// written must match in.Hash, otherwise nothing is kept.
func (s *FileStore) Store(ctx context.Context, content io.Reader, in StoreInput) (StoredFile, error) {
	id := uuid.NewString()
	rec := StoredFile{
		ID:           id,
		OriginalName: in.OriginalName,
		StoredName:   id + ExtensionFor(in.MIME),
		MIME:         in.MIME,
		Size:         in.Size,
		Hash:         in.Hash,
		UploadedAt:   s.now().UTC(),
		OwnerID:      in.OwnerID,
	}

	h := sha256.New()
	if err := s.blobs.Put(ctx, blobKey(rec.StoredName), io.TeeReader(content, h), in.Size, in.MIME); err != nil {
		_ = s.blobs.Remove(context.WithoutCancel(ctx), blobKey(rec.StoredName))
		return StoredFile{}, transfer.Storage("write bytes", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != in.Hash {
		_ = s.blobs.Remove(context.WithoutCancel(ctx), blobKey(rec.StoredName))
		return StoredFile{}, fmt.Errorf("%w: content digest changed during write", transfer.ErrInternalStorage)
	}

	meta, err := json.Marshal(rec)
	if err != nil {
		_ = s.blobs.Remove(context.WithoutCancel(ctx), blobKey(rec.StoredName))
		return StoredFile{}, transfer.Storage("encode metadata", err)
	}
	if err := s.blobs.Put(ctx, metaKey(id), bytes.NewReader(meta), int64(len(meta)), "application/json"); err != nil {
		_ = s.blobs.Remove(context.WithoutCancel(ctx), blobKey(rec.StoredName))
		return StoredFile{}, transfer.Storage("write metadata", err)
	}
	return rec, nil
}

// Retrieve loads the metadata record for id.
func (s *FileStore) Retrieve(ctx context.Context, id string) (StoredFile, error) {
	if !validID(id) {
		return StoredFile{}, transfer.ErrNotFound
	}
	rc, err := s.blobs.Get(ctx, metaKey(id))
	if errors.Is(err, ErrBlobNotFound) {
		return StoredFile{}, transfer.ErrNotFound
	}
	if err != nil {
		return StoredFile{}, transfer.Storage("read metadata", err)
	}
	defer rc.Close()

	var rec StoredFile
	if err := json.NewDecoder(rc).Decode(&rec); err != nil {
		return StoredFile{}, transfer.Storage("decode metadata", err)
	}
	if rec.ID != id {
		return StoredFile{}, fmt.Errorf("%w: metadata id mismatch", transfer.ErrInternalStorage)
	}
	return rec, nil
}

// GetPath returns the byte location of id.
func (s *FileStore) GetPath(ctx context.Context, id string) (string, error) {
	rec, err := s.Retrieve(ctx, id)
	if err != nil {
		return "", err
	}
	return s.blobs.Location(blobKey(rec.StoredName)), nil
}

// Open returns the metadata and a reader over the bytes of id. The caller
// closes the reader.
func (s *FileStore) Open(ctx context.Context, id string) (StoredFile, io.ReadCloser, error) {
	rec, err := s.Retrieve(ctx, id)
	if err != nil {
		return StoredFile{}, nil, err
	}
	rc, err := s.blobs.Get(ctx, blobKey(rec.StoredName))
	if errors.Is(err, ErrBlobNotFound) {
		return StoredFile{}, nil, transfer.ErrNotFound
	}
	if err != nil {
		return StoredFile{}, nil, transfer.Storage("read bytes", err)
	}
	return rec, rc, nil
}

// Exists is true only when both the metadata and the bytes are present.
func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := s.Retrieve(ctx, id)
	if errors.Is(err, transfer.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, err := s.blobs.Exists(ctx, blobKey(rec.StoredName))
	if err != nil {
		return false, transfer.Storage("stat bytes", err)
	}
	return ok, nil
}

// Delete removes metadata first, then bytes. A crash in between leaves an
// orphan blob for the sweeper rather than a record without content.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Retrieve(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, metaKey(id)); err != nil {
		return transfer.Storage("remove metadata", err)
	}
	if err := s.blobs.Remove(ctx, blobKey(rec.StoredName)); err != nil {
		return transfer.Storage("remove bytes", err)
	}
	return nil
}

// Ping checks the backend is reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	return s.blobs.Ping(ctx)
}
