package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/anonymizer"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/audit"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/config"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/grader"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/observability"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/sandbox"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/uploads"
)

// loadConfig reads the optional env file, then the environment, then
// the optional YAML profile. An explicitly named env file must exist;
// a bare ".env" in the working directory is best effort.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}
	if cfgFile != "" {
		return config.LoadWithProfile(cfgFile)
	}
	return config.Load()
}

// newLogger builds the process logger. Logs go to stderr: stdout
// belongs to the MCP transport.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// app holds the composed components and owns their teardown.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	deps     *tools.Deps
	provider *observability.Provider
	auditor  audit.Logger
}

// buildApp wires the component graph in dependency order: audit and
// telemetry first, then the anonymizer and the gateway client built on
// them, then everything that talks Canvas through the client.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withPlugins bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, auditor: audit.Nop{}}

	if cfg.AuditAccess || cfg.AuditExecute {
		auditor, err := audit.New(audit.Options{Dir: cfg.AuditDir})
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		a.auditor = auditor
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Enabled = true
	}
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.provider = provider

	var anon *anonymizer.Anonymizer
	if cfg.Anonymize {
		anon = anonymizer.New(
			anonymizer.WithDebug(cfg.AnonymizationDebug),
			anonymizer.WithLogger(logger),
		)
	}

	client, err := canvas.New(canvas.Options{
		BaseURL:     cfg.BaseURL,
		Token:       cfg.APIToken,
		Timeout:     cfg.Timeout,
		Limiter:     canvas.NewAdaptiveLimiter(cfg.RateInitial, cfg.RateMin, cfg.RateMax, cfg.RateBurst),
		Anonymizer:  anon,
		Audit:       a.auditor,
		AuditAccess: cfg.AuditAccess,
		LogRequests: cfg.LogAPIRequests,
		Logger:      logger,
		Track:       provider.Track,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("build canvas client: %w", err)
	}

	var plugins *sandbox.Runner
	if withPlugins {
		opts := []sandbox.RunnerOption{sandbox.WithLogger(logger)}
		if cfg.AuditExecute {
			opts = append(opts, sandbox.WithAudit(a.auditor))
		}
		plugins, err = sandbox.NewRunner(ctx, sandbox.Limits{}, opts...)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init plugin sandbox: %w", err)
		}
	}

	cache := courses.NewCache(client, cfg.CacheTTL, logger)
	a.deps = &tools.Deps{
		Client:  client,
		Courses: cache,
		Grader: grader.NewRunner(client, cache,
			grader.WithMaxConcurrent(cfg.MaxConcurrent),
			grader.WithLogger(logger)),
		Uploader:    uploads.New(client, cache, uploads.WithLogger(logger)),
		Plugins:     plugins,
		Anon:        anon,
		Gate:        canvas.NewFeatureGate(cfg.Release),
		Health:      observability.NewHealthTracker(),
		Logger:      logger,
		Version:     version,
		Institution: cfg.Institution,
	}
	return a, nil
}

// Close releases resources in reverse construction order.
func (a *app) Close(ctx context.Context) {
	if a.deps != nil && a.deps.Plugins != nil {
		if err := a.deps.Plugins.Close(ctx); err != nil {
			a.logger.Warn("closing plugin sandbox", "error", err)
		}
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			a.logger.Warn("flushing telemetry", "error", err)
		}
	}
	if err := a.auditor.Close(); err != nil {
		a.logger.Warn("closing audit log", "error", err)
	}
}
