package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"secure-transfer/internal/transfer"
)

var (
	pdfBytes  = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	shBytes   = []byte("#!/bin/sh\nrm -rf /\n")
)

func upload(name, declared string, b []byte) Upload {
	return Upload{
		Filename:     name,
		DeclaredType: declared,
		Size:         int64(len(b)),
		Content:      bytes.NewReader(b),
	}
}

func TestValidatorAcceptsAllowedTypes(t *testing.T) {
	v := NewValidator(0, nil)

	tests := []struct {
		name string
		u    Upload
		want string
	}{
		{"pdf", upload("report.pdf", "application/pdf", pdfBytes), "application/pdf"},
		{"png", upload("image.png", "image/png", pngBytes), "image/png"},
		{"jpeg", upload("photo.jpg", "image/jpeg", jpegBytes), "image/jpeg"},
		{"declared type ignored", upload("report.pdf", "text/html", pdfBytes), "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.u)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("mime got %q want %q", got, tt.want)
			}
		})
	}
}

func TestValidatorRejects(t *testing.T) {
	v := NewValidator(1024, nil)

	tests := []struct {
		name    string
		u       Upload
		wantErr error
	}{
		{"magic bytes beat declared type", upload("invoice.pdf", "application/pdf", shBytes), transfer.ErrMimeNotAllowed},
		{"plain text", upload("notes.txt", "text/plain", []byte("hello world")), transfer.ErrMimeNotAllowed},
		{"traversal", upload("../../etc/passwd", "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"windows traversal", upload(`..\..\boot.ini`, "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"null byte", upload("a\x00.pdf", "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"shell chars", upload("a;rm -rf.pdf", "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"subshell", upload("$(id).pdf", "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"newline", upload("a\nb.pdf", "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"empty name", upload("  ", "application/pdf", pdfBytes), transfer.ErrInvalidFilename},
		{"too large", upload("big.pdf", "application/pdf", append(pdfBytes, make([]byte, 2048)...)), transfer.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.u)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v want %v", err, tt.wantErr)
			}
			if !errors.Is(err, transfer.ErrFileValidation) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestValidatorCheckOrder(t *testing.T) {
	v := NewValidator(8, nil)

	// Oversize content with a bad type and a bad name reports size first.
	_, err := v.Validate(upload("../x", "application/pdf", shBytes))
	if !errors.Is(err, transfer.ErrFileTooLarge) {
		t.Fatalf("got %v want ErrFileTooLarge", err)
	}

	// Bad type and bad name reports type before name.
	v = NewValidator(0, nil)
	_, err = v.Validate(upload("../x", "application/pdf", shBytes))
	if !errors.Is(err, transfer.ErrMimeNotAllowed) {
		t.Fatalf("got %v want ErrMimeNotAllowed", err)
	}
}

func TestValidatorCustomAllowList(t *testing.T) {
	v := NewValidator(0, []string{" TEXT/PLAIN ", ""})
	got, err := v.Validate(upload("notes.txt", "", []byte("hello world")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "text/plain" {
		t.Fatalf("mime got %q want text/plain", got)
	}
	if _, err := v.Validate(upload("report.pdf", "", pdfBytes)); !errors.Is(err, transfer.ErrMimeNotAllowed) {
		t.Fatalf("pdf should be rejected by a text-only list, got %v", err)
	}
}

func TestValidateLeavesReaderRewound(t *testing.T) {
	v := NewValidator(0, nil)
	u := upload("report.pdf", "", pdfBytes)
	if _, err := v.Validate(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	head := make([]byte, 5)
	if _, err := u.Content.Read(head); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(head) != "%PDF-" {
		t.Fatalf("reader not rewound, got %q", head)
	}
}

func TestComputeHash(t *testing.T) {
	sum := sha256.Sum256(pdfBytes)
	want := hex.EncodeToString(sum[:])

	r := bytes.NewReader(pdfBytes)
	_, _ = r.Seek(7, 0)
	got, err := ComputeHash(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("hash got %s want %s", got, want)
	}
	if r.Len() != len(pdfBytes) {
		t.Fatalf("reader not rewound after hashing")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"application/pdf":             ".pdf",
		"image/jpeg":                  ".jpg",
		"image/png":                   ".png",
		"application/zip":             ".zip",
		"application/x-unknown-thing": ".bin",
	}
	for in, want := range tests {
		if got := ExtensionFor(in); got != want {
			t.Errorf("ExtensionFor(%q) got %q want %q", in, got, want)
		}
	}
}

func TestValidateFilenameLength(t *testing.T) {
	if err := ValidateFilename(strings.Repeat("a", 256)); !errors.Is(err, transfer.ErrInvalidFilename) {
		t.Fatalf("expected ErrInvalidFilename, got %v", err)
	}
	if err := ValidateFilename("quarterly report (final).pdf"); err == nil {
		t.Fatalf("parentheses must be rejected")
	}
	if err := ValidateFilename("quarterly-report_final v2.pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
