// Package sandbox executes analysis plugins as WASI modules under
// wazero. Deny-by-default: no filesystem mounts, no network, no
// environment, no host clocks or randomness beyond what WASI preview 1
// wires by default. A plugin reads its input document from stdin and
// writes its result to stdout; every run leaves a code_execution audit
// event keyed by the module's content hash.
package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/audit"
)

// Deterministic error codes for plugin limit violations and failures.
const (
	ErrPluginTimeout = "ERR_PLUGIN_TIMEOUT"
	ErrPluginMemory  = "ERR_PLUGIN_MEMORY"
	ErrPluginOutput  = "ERR_PLUGIN_OUTPUT"
	ErrPluginInvalid = "ERR_PLUGIN_INVALID"
	ErrPluginExit    = "ERR_PLUGIN_EXIT"
	ErrPluginTrap    = "ERR_PLUGIN_TRAP"
)

// maxModuleBytes caps the size of a plugin binary loaded from disk.
const maxModuleBytes = 50 << 20

// hashPrefixLen is the number of hex characters kept from a SHA-256
// digest when hashing module bytes and inputs for the audit trail.
const hashPrefixLen = 16

// Error is a typed, deterministic error for sandbox failures.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Limits bounds one plugin execution.
type Limits struct {
	// MemoryBytes caps guest linear memory, rounded down to 64 KiB
	// pages (minimum one page).
	MemoryBytes int64
	// Timeout is the wall-clock ceiling per run.
	Timeout time.Duration
	// MaxOutputBytes caps combined stdout and stderr.
	MaxOutputBytes int
}

// DefaultLimits returns the limits applied when a field is zero.
func DefaultLimits() Limits {
	return Limits{
		MemoryBytes:    64 << 20,
		Timeout:        10 * time.Second,
		MaxOutputBytes: 1 << 20,
	}
}

// Result is the outcome of a successful plugin run.
type Result struct {
	Output   []byte        `json:"output"`
	Stderr   []byte        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Runner executes WASI plugins. It owns one wazero runtime; Close
// releases it.
type Runner struct {
	runtime wazero.Runtime
	limits  Limits
	auditor audit.Logger
	logger  *slog.Logger
}

// RunnerOption adjusts Runner construction.
type RunnerOption func(*Runner)

// WithAudit attaches the audit logger for code_execution events.
func WithAudit(l audit.Logger) RunnerOption {
	return func(r *Runner) { r.auditor = l }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a Runner with the given limits. The runtime closes
// guest execution when the context deadline passes, so a spinning
// plugin cannot outlive its timeout.
func NewRunner(ctx context.Context, limits Limits, opts ...RunnerOption) (*Runner, error) {
	def := DefaultLimits()
	if limits.MemoryBytes <= 0 {
		limits.MemoryBytes = def.MemoryBytes
	}
	if limits.Timeout <= 0 {
		limits.Timeout = def.Timeout
	}
	if limits.MaxOutputBytes <= 0 {
		limits.MaxOutputBytes = def.MaxOutputBytes
	}

	pages := uint32(limits.MemoryBytes / (64 * 1024))
	if pages == 0 {
		pages = 1
	}
	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	runner := &Runner{
		runtime: r,
		limits:  limits,
		auditor: audit.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// Run executes one plugin with input on stdin and returns captured
// stdout. The module is compiled per run and never cached: plugins are
// untrusted input, not installed software.
func (r *Runner) Run(ctx context.Context, wasmBytes, input []byte) (*Result, error) {
	start := time.Now()
	codeHash := hashPrefix(wasmBytes)

	res, err := r.run(ctx, wasmBytes, input)
	duration := time.Since(start)

	ev := audit.ExecutionEvent(codeHash, "wasi", audit.StatusSuccess, duration, "")
	ev.InputHash = canonicalInputHash(input)
	if err != nil {
		ev.Status = audit.StatusError
		ev.Error = errTag(err)
	}
	audit.Emit(r.auditor, ev)

	if err != nil {
		return nil, err
	}
	res.Duration = duration
	r.logger.Debug("plugin executed",
		"code_hash", codeHash,
		"duration_ms", duration.Milliseconds(),
		"output_bytes", len(res.Output))
	return res, nil
}

func (r *Runner) run(ctx context.Context, wasmBytes, input []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.limits.Timeout)
	defer cancel()

	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &Error{Code: ErrPluginInvalid, Message: fmt.Sprintf("module does not compile: %v", err)}
	}
	defer func() { _ = compiled.Close(ctx) }()

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous, so concurrent runs never collide
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := r.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		var exitErr *sys.ExitError
		switch {
		case errors.As(err, &exitErr):
			if exitErr.ExitCode() == 0 {
				break // clean proc_exit(0)
			}
			return nil, &Error{Code: ErrPluginExit, Message: fmt.Sprintf("plugin exited with code %d", exitErr.ExitCode())}
		case ctx.Err() != nil:
			return nil, &Error{Code: ErrPluginTimeout, Message: fmt.Sprintf("execution exceeded %v", r.limits.Timeout)}
		case isMemoryError(err):
			return nil, &Error{Code: ErrPluginMemory, Message: fmt.Sprintf("execution exceeded %d bytes of memory", r.limits.MemoryBytes)}
		default:
			return nil, &Error{Code: ErrPluginTrap, Message: fmt.Sprintf("execution failed: %v", err)}
		}
	}
	if mod != nil {
		defer func() { _ = mod.Close(ctx) }()
	}

	if total := stdout.Len() + stderr.Len(); total > r.limits.MaxOutputBytes {
		return nil, &Error{Code: ErrPluginOutput, Message: fmt.Sprintf("output size %d exceeds limit %d", total, r.limits.MaxOutputBytes)}
	}
	return &Result{Output: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// Close shuts down the wazero runtime.
func (r *Runner) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Limits returns the effective limits after defaulting.
func (r *Runner) Limits() Limits {
	return r.limits
}

// LoadModule reads a plugin binary from disk, refusing anything that is
// not a regular .wasm file under the size cap.
func LoadModule(path string) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) != ".wasm" {
		return nil, &Error{Code: ErrPluginInvalid, Message: "plugin must be a .wasm file"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Code: ErrPluginInvalid, Message: fmt.Sprintf("plugin is not readable: %v", err)}
	}
	if !info.Mode().IsRegular() {
		return nil, &Error{Code: ErrPluginInvalid, Message: "plugin path is not a regular file"}
	}
	if info.Size() > maxModuleBytes {
		return nil, &Error{Code: ErrPluginInvalid, Message: fmt.Sprintf("plugin size %d exceeds limit %d", info.Size(), maxModuleBytes)}
	}
	return os.ReadFile(path)
}

// hashPrefix returns the first hashPrefixLen hex characters of the
// SHA-256 digest.
func hashPrefix(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

// canonicalInputHash hashes the input document in RFC 8785 canonical
// form so the same logical JSON always audits to the same hash. Inputs
// that are not valid JSON hash as raw bytes.
func canonicalInputHash(input []byte) string {
	if len(input) == 0 {
		return ""
	}
	if canonical, err := jcs.Transform(input); err == nil {
		return hashPrefix(canonical)
	}
	return hashPrefix(input)
}

func errTag(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return fmt.Sprintf("%T", err)
}

// isMemoryError reports whether err looks like a linear-memory limit
// violation. wazero surfaces these as instantiation errors mentioning
// memory growth.
func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded"))
}
