package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, Canvas connectivity, and feature gates",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	out := cmd.OutOrStdout()
	red := cfg.Redacted()
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "- Canvas URL: %s\n", red.BaseURL)
	fmt.Fprintf(out, "- Token: %s\n", red.APIToken)
	fmt.Fprintf(out, "- Anonymization: %t (debug %t)\n", red.Anonymize, red.AnonymizationDebug)
	fmt.Fprintf(out, "- Audit: access=%t execute=%t dir=%s\n", red.AuditAccess, red.AuditExecute, red.AuditDir)
	fmt.Fprintf(out, "- Rate limit: %.2f req/s (min %.2f, max %.2f, burst %d)\n",
		red.RateInitial, red.RateMin, red.RateMax, red.RateBurst)
	fmt.Fprintf(out, "- Cache TTL: %s\n", red.CacheTTL)
	if red.Institution != "" {
		fmt.Fprintf(out, "- Institution: %s\n", red.Institution)
	}
	if red.Release != "" {
		fmt.Fprintf(out, "- Pinned release: %s\n", red.Release)
	}
	fmt.Fprintln(out)

	app, err := buildApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	report, err := healthReport(cmd.Context(), app.deps)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report)
	return nil
}

// healthReport runs the canvas_health tool the way the server would,
// probe included, so doctor and the in-session tool never disagree.
func healthReport(ctx context.Context, deps *tools.Deps) (string, error) {
	for _, spec := range tools.All() {
		if spec.Name != "canvas_health" {
			continue
		}
		args, err := tools.CoerceArgs(spec.Params, map[string]any{})
		if err != nil {
			return "", err
		}
		return spec.Handler(ctx, deps, args)
	}
	return "", errors.New("canvas_health tool is not registered")
}
