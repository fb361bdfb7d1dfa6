// validator.go - Upload content policy: size, sniffed MIME type, filename.
//
// The MIME type is always taken from the leading bytes of the content. The
// client-declared Content-Type is recorded for logging only.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"secure-transfer/internal/transfer"
)

// DefaultMaxUploadBytes is 100 MiB.
const DefaultMaxUploadBytes int64 = 100 * 1024 * 1024

const maxFilenameLength = 255

// DefaultAllowedMimeTypes is the upload allow-list used when none is configured.
var DefaultAllowedMimeTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"application/zip",
}

// forbiddenFilenameTokens are rejected anywhere in an original filename.
var forbiddenFilenameTokens = []string{
	"../", `..\`, "\x00", ";", "|", "`", "$", "(", ")", "&", "<", ">", "\r", "\n",
}

// Upload is a received file before it is accepted. Content must support
// seeking so it can be sniffed, hashed and then stored.
type Upload struct {
	Filename     string
	DeclaredType string
	Size         int64
	Content      io.ReadSeeker
}

// Validator enforces the upload policy.
type Validator struct {
	maxSize int64
	allowed []string
}

// NewValidator builds a validator. Zero values fall back to the defaults.
func NewValidator(maxSize int64, allowed []string) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadBytes
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedMimeTypes
	}
	norm := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			norm = append(norm, a)
		}
	}
	return &Validator{maxSize: maxSize, allowed: norm}
}

// MaxSize returns the configured size limit in bytes.
func (v *Validator) MaxSize() int64 { return v.maxSize }

// Validate checks size, then content type, then filename, and returns the
// verified MIME type.
func (v *Validator) Validate(u Upload) (string, error) {
	if u.Size > v.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", transfer.ErrFileTooLarge, u.Size, v.maxSize)
	}

	detected, err := sniff(u.Content)
	if err != nil {
		return "", transfer.Storage("sniff content", err)
	}
	mime, ok := v.match(detected)
	if !ok {
		return "", fmt.Errorf("%w: %s", transfer.ErrMimeNotAllowed, baseType(detected.String()))
	}

	if err := ValidateFilename(u.Filename); err != nil {
		return "", err
	}
	return mime, nil
}

// match returns the allow-list entry the detected type satisfies, honouring
// the detector's aliases (for example image/pjpeg).
func (v *Validator) match(m *mimetype.MIME) (string, bool) {
	for _, a := range v.allowed {
		if m.Is(a) {
			return a, true
		}
	}
	return "", false
}

// ValidateFilename rejects traversal sequences and shell metacharacters.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", transfer.ErrInvalidFilename)
	}
	if len(name) > maxFilenameLength {
		return fmt.Errorf("%w: longer than %d bytes", transfer.ErrInvalidFilename, maxFilenameLength)
	}
	for _, tok := range forbiddenFilenameTokens {
		if strings.Contains(name, tok) {
			return transfer.ErrInvalidFilename
		}
	}
	return nil
}

// ComputeHash returns the hex SHA-256 of the whole content and rewinds it.
func ComputeHash(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExtensionFor maps a verified MIME type to the stored-file extension.
func ExtensionFor(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

func sniff(r io.ReadSeeker) (*mimetype.MIME, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return m, nil
}

func baseType(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.TrimSpace(m)
}
