// Package client talks to a secure transfer server: it uploads files,
// downloads them with integrity checks, and redeems signed URLs.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"secure-transfer/internal/auth"
)

// ErrHashMismatch is returned when downloaded bytes do not match the hash
// the server recorded at upload. The partial file is removed.
var ErrHashMismatch = errors.New("downloaded file hash mismatch")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// FileInfo describes a stored file as reported by the server.
type FileInfo struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	MIME         string    `json:"mime"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	UploadedAt   time.Time `json:"uploaded_at"`
	OwnerID      string    `json:"owner_id"`
}

// SignedURL is a one-time download capability.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type uploadResponse struct {
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	MIME         string    `json:"mime"`
	Hash         string    `json:"hash"`
	StoredAt     time.Time `json:"stored_at"`
	OwnerID      string    `json:"owner_id"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		creds:   creds,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Upload sends the file at path. The multipart body is built in a temporary
// file first so its digest can be signed before it is sent.
func (c *Client) Upload(ctx context.Context, path string) (FileInfo, error) {
	src, err := os.Open(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	body, contentType, digest, err := buildMultipart(src, filepath.Base(path))
	if err != nil {
		return FileInfo{}, err
	}
	defer func() {
		_ = body.Close()
		_ = os.Remove(body.Name())
	}()
	st, err := body.Stat()
	if err != nil {
		return FileInfo{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/secure-transfer/upload", body)
	if err != nil {
		return FileInfo{}, err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", contentType)

	var out uploadResponse
	if err := c.doJSON(req, digest, http.StatusCreated, &out); err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		ID:           out.FileID,
		OriginalName: out.OriginalName,
		MIME:         out.MIME,
		Size:         out.Size,
		Hash:         out.Hash,
		UploadedAt:   out.StoredAt,
		OwnerID:      out.OwnerID,
	}, nil
}

// Status fetches the metadata of id.
func (c *Client) Status(ctx context.Context, id string) (FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/secure-transfer/status/"+url.PathEscape(id), nil)
	if err != nil {
		return FileInfo{}, err
	}
	var out FileInfo
	if err := c.doJSON(req, emptyDigest, http.StatusOK, &out); err != nil {
		return FileInfo{}, err
	}
	return out, nil
}

// Delete removes id from the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/secure-transfer/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, emptyDigest, http.StatusNoContent, nil)
}

// RequestSignedURL asks for a capability valid for ttl (zero for the
// server default).
func (c *Client) RequestSignedURL(ctx context.Context, id string, ttl time.Duration) (SignedURL, error) {
	u := c.baseURL + "/secure-transfer/request-url/" + url.PathEscape(id)
	if ttl > 0 {
		u += "?ttl=" + strconv.FormatInt(int64(ttl/time.Second), 10)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return SignedURL{}, err
	}
	var out SignedURL
	if err := c.doJSON(req, emptyDigest, http.StatusOK, &out); err != nil {
		return SignedURL{}, err
	}
	return out, nil
}

// Download fetches id with the client credentials into outPath and checks
// the bytes against the recorded hash.
func (c *Client) Download(ctx context.Context, id, outPath string) (FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/secure-transfer/download/"+url.PathEscape(id), nil)
	if err != nil {
		return FileInfo{}, err
	}
	if err := c.creds.Sign(req, emptyDigest); err != nil {
		return FileInfo{}, fmt.Errorf("sign request: %w", err)
	}
	return c.fetchVerified(ctx, req, id, outPath)
}

// DownloadSigned requests a signed URL for id and redeems it. The redeeming
// request carries no credentials.
func (c *Client) DownloadSigned(ctx context.Context, id, outPath string) (FileInfo, error) {
	signed, err := c.RequestSignedURL(ctx, id, 0)
	if err != nil {
		return FileInfo{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed.URL, nil)
	if err != nil {
		return FileInfo{}, err
	}
	return c.fetchVerified(ctx, req, id, outPath)
}

func (c *Client) fetchVerified(ctx context.Context, req *http.Request, id, outPath string) (FileInfo, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return FileInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return FileInfo{}, apiError(resp)
	}

	got, err := writeHashed(resp.Body, outPath)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := c.Status(ctx, id)
	if err != nil {
		_ = os.Remove(outPath)
		return FileInfo{}, err
	}
	if got != info.Hash {
		_ = os.Remove(outPath)
		return FileInfo{}, ErrHashMismatch
	}
	return info, nil
}

var emptyDigest = auth.BodyDigest(nil)

func (c *Client) doJSON(req *http.Request, digest string, want int, out any) error {
	if err := c.creds.Sign(req, digest); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

// buildMultipart writes a single-part form to a temporary file and returns
// it rewound, with its content type and the hex SHA-256 of its bytes.
func buildMultipart(src io.Reader, filename string) (*os.File, string, string, error) {
	f, err := os.CreateTemp("", "sft-client-*")
	if err != nil {
		return nil, "", "", err
	}
	fail := func(err error) (*os.File, string, string, error) {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, "", "", err
	}

	h := sha256.New()
	mw := multipart.NewWriter(io.MultiWriter(f, h))
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fail(fmt.Errorf("read upload: %w", err))
	}
	if err := mw.Close(); err != nil {
		return fail(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(err)
	}
	return f, mw.FormDataContentType(), hex.EncodeToString(h.Sum(nil)), nil
}

// writeHashed streams r into path and returns the hex SHA-256 written. A
// failed copy leaves no file behind.
func writeHashed(r io.Reader, path string) (string, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
