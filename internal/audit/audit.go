// audit.go - Transfer event trail.
//
// Every security-relevant outcome is written as one structured log line and,
// when a sink is configured, persisted. Sink failures are logged and never
// fail the request that produced the event.
package audit

import (
	"context"
	"time"

	"secure-transfer/internal/logging"
)

// Event names a transfer outcome.
type Event string

const (
	EventUploadSuccess    Event = "UPLOAD_SUCCESS"
	EventUploadFailed     Event = "UPLOAD_FAILED"
	EventDownloadSuccess  Event = "DOWNLOAD_SUCCESS"
	EventDownloadFailed   Event = "DOWNLOAD_FAILED"
	EventAuthFailed       Event = "AUTH_FAILED"
	EventReplayDetected   Event = "REPLAY_DETECTED"
	EventRateLimitHit     Event = "RATE_LIMIT_HIT"
	EventSignedURLCreated Event = "SIGNED_URL_CREATED"
	EventSignedURLUsed    Event = "SIGNED_URL_USED"
	EventSignedURLExpired Event = "SIGNED_URL_EXPIRED"
	EventFileDeleted      Event = "FILE_DELETED"
)

// Security reports whether e is logged at warning level.
func (e Event) Security() bool {
	switch e {
	case EventAuthFailed, EventReplayDetected, EventRateLimitHit:
		return true
	}
	return false
}

// Entry is one audit record.
type Entry struct {
	Event     Event
	Time      time.Time
	TokenID   string
	FileID    string
	ClientIP  string
	Hash      string
	Size      int64
	Error     string
	UserAgent string
	RequestID string
}

// Sink persists entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Options controls which sensitive attributes are kept.
type Options struct {
	LogIP   bool
	LogHash bool
}

// Logger records transfer events.
type Logger struct {
	sink Sink
	opts Options
	now  func() time.Time
}

// NewLogger builds a logger. sink may be nil.
func NewLogger(sink Sink, opts Options) *Logger {
	return &Logger{sink: sink, opts: opts, now: time.Now}
}

// Record writes e to the log and the sink.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.Time.IsZero() {
		e.Time = l.now().UTC()
	}
	if !l.opts.LogIP {
		e.ClientIP = ""
	}
	if !l.opts.LogHash {
		e.Hash = ""
	}

	fields := map[string]any{"event": string(e.Event)}
	put := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	put("token_id", e.TokenID)
	put("file_id", e.FileID)
	put("ip", e.ClientIP)
	put("hash", e.Hash)
	put("error", e.Error)
	put("request_id", e.RequestID)
	if e.Size > 0 {
		fields["size"] = e.Size
	}

	if e.Event.Security() {
		logging.Warn("transfer event", fields)
	} else {
		logging.Info("transfer event", fields)
	}

	if l.sink == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := l.sink.Write(wctx, e); err != nil {
		logging.Error("audit sink write failed", map[string]any{"event": string(e.Event)}, err)
	}
}
