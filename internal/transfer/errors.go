// errors.go - Error taxonomy shared by the security and storage layers.
//
// Components return these sentinels (optionally wrapped with detail via
// fmt.Errorf("%w: ...")) and the HTTP boundary maps them to status codes
// with errors.Is. Detail strings never carry secret material.
package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidInput         = errors.New("invalid input")
	ErrReplayDetected       = errors.New("replay detected")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")

	// ErrFileValidation is the parent of every upload policy rejection.
	ErrFileValidation  = errors.New("file validation failed")
	ErrFileTooLarge    = fmt.Errorf("%w: file too large", ErrFileValidation)
	ErrMimeNotAllowed  = fmt.Errorf("%w: mime type not allowed", ErrFileValidation)
	ErrInvalidFilename = fmt.Errorf("%w: invalid filename", ErrFileValidation)

	ErrSignedURLExpired = errors.New("signed url expired")
	ErrSignedURLInvalid = errors.New("signed url invalid")
	ErrIPMismatch       = errors.New("ip address mismatch")

	ErrNotFound        = errors.New("file not found")
	ErrInternalStorage = errors.New("internal storage error")
)

// Storage wraps an underlying I/O failure as ErrInternalStorage while keeping
// the cause available to errors.Is / errors.As for server-side logging.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternalStorage, op, err)
}
