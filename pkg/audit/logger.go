// Package audit records structured JSON events for data access and code
// execution. Events go to stderr and to a rotating JSONL file. The audit
// channel is deliberately separate from the application logger: nothing
// here routes through slog handlers, so audit events can never propagate
// to the root logger.
package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventDataAccess    EventType = "data_access"
	EventCodeExecution EventType = "code_execution"
)

// Status is the outcome tag of an audited operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Event is a single audit record. Timestamp is assigned by Record, after
// the payload is built, so a caller-provided field can never spoof it.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	EventID   string    `json:"event_id"`

	// data_access fields.
	Method   string `json:"method,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	// code_execution fields.
	CodeHash   string `json:"code_hash,omitempty"`
	InputHash  string `json:"input_hash,omitempty"`
	Sandbox    string `json:"sandbox,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	Status Status `json:"status"`
	// Error carries an HTTP status code or a Go type name, never a raw
	// message: messages may contain PII.
	Error string `json:"error,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(ev Event) error
	Close() error
}

// Options configures the file-backed logger.
type Options struct {
	// Dir is the audit directory; the JSONL file lives at Dir/audit.jsonl.
	Dir string
	// Stderr overrides the stderr channel, mainly for tests. nil → os.Stderr.
	Stderr io.Writer
	// MaxSizeMB and MaxBackups bound rotation. Zero values take the
	// defaults (10 MiB, 5 backups).
	MaxSizeMB  int
	MaxBackups int
}

type fileLogger struct {
	mu     sync.Mutex
	stderr io.Writer
	file   io.WriteCloser
}

// New creates a Logger writing JSON lines to stderr and to a rotating
// file under opts.Dir.
func New(opts Options) (Logger, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 5
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, err
	}
	return &fileLogger{
		stderr: opts.Stderr,
		file: &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "audit.jsonl"),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
	}, nil
}

// NewWithWriter creates a Logger writing to a single writer, for tests
// and custom sinks.
func NewWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &fileLogger{stderr: w}
}

func (l *fileLogger) Record(ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	// Stamped last: callers cannot pre-set it.
	ev.Timestamp = time.Now().UTC()

	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.stderr.Write(line)
	if l.file != nil {
		if _, ferr := l.file.Write(line); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}

func (l *fileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Nop is a Logger that records nothing, used when all audit flags are off.
type Nop struct{}

func (Nop) Record(Event) error { return nil }
func (Nop) Close() error       { return nil }

// Emit records ev on l and downgrades any failure to a warning: audit
// failures never affect the primary operation's outcome.
func Emit(l Logger, ev Event) {
	if l == nil {
		return
	}
	if err := l.Record(ev); err != nil {
		slog.Warn("audit record failed", "event_type", ev.EventType, "error", err)
	}
}

// AccessEvent builds a data_access event. The endpoint is sanitized here
// so no caller can log a path with raw numeric IDs.
func AccessEvent(method, endpoint string, status Status, errTag string) Event {
	return Event{
		EventType: EventDataAccess,
		Method:    method,
		Endpoint:  SanitizePath(endpoint),
		Status:    status,
		Error:     errTag,
	}
}

// ExecutionEvent builds a code_execution event. codeHash should be a
// SHA-256 hex prefix of the executed code, never the code itself.
func ExecutionEvent(codeHash, sandbox string, status Status, d time.Duration, errTag string) Event {
	return Event{
		EventType:  EventCodeExecution,
		CodeHash:   codeHash,
		Sandbox:    sandbox,
		DurationMS: d.Milliseconds(),
		Status:     status,
		Error:      errTag,
	}
}
