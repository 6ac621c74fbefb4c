package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/observability"
)

func canvasHealthSpec() Spec {
	return Spec{
		Name: "canvas_health",
		Description: "Report server health: Canvas connectivity, feature gates, rate limiter state, " +
			"course cache freshness, and per-operation status.",
		Params: []ParamSpec{
			{Name: "probe", Type: TypeBool, Default: true,
				Description: "Probe the Canvas API for its release tag (one authenticated request)."},
		},
		Handler: canvasHealth,
	}
}

func canvasHealth(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Canvas MCP server %s", deps.Version)
	if deps.Institution != "" {
		fmt.Fprintf(&b, " (%s)", deps.Institution)
	}
	b.WriteString("\n")

	gate := deps.Gate
	if gate == nil {
		gate = canvas.NewFeatureGate("")
	}

	b.WriteString("\nConnection:\n")
	if argBool(args, "probe") {
		release, err := deps.Client.DetectRelease(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "- API probe failed: %s\n", probeFailure(err))
		case release != "":
			fmt.Fprintf(&b, "- API reachable, release %s\n", release)
			gate = canvas.NewFeatureGate(release)
		default:
			b.WriteString("- API reachable (release not reported; assuming current)\n")
		}
	} else {
		b.WriteString("- probe skipped\n")
	}

	fmt.Fprintf(&b, "\nFeature gates (release %s):\n", gate.Release())
	gated := gate.Gated()
	for _, name := range sortedKeys(gated) {
		state := "supported"
		if !gated[name] {
			state = "unavailable"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, state)
	}

	snap := deps.Client.Limiter().Snapshot()
	b.WriteString("\nRate limiter:\n")
	fmt.Fprintf(&b, "- %.2f req/s (min %.2f, max %.2f, burst %d)\n", snap.Rate, snap.Min, snap.Max, snap.Burst)
	if snap.Throttle {
		fmt.Fprintf(&b, "- throttled, last 429 at %s\n", snap.Last429.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	stats := deps.Courses.Stats()
	b.WriteString("\nCourse cache:\n")
	fetched := "never"
	if !stats.FetchedAt.IsZero() {
		fetched = stats.FetchedAt.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	fmt.Fprintf(&b, "- %d courses, %d codes, fetched %s, TTL %s\n",
		stats.Courses, stats.Codes, fetched, stats.TTL)

	b.WriteString("\nOperations:\n")
	var statuses []observability.OpStatus
	if deps.Health != nil {
		statuses = deps.Health.All()
	}
	if len(statuses) == 0 {
		b.WriteString("- no operations recorded yet\n")
	}
	for _, st := range statuses {
		state := "healthy"
		if !st.Healthy {
			state = "degraded"
		}
		fmt.Fprintf(&b, "- %s: %s (p99 %.0f ms, success %.1f%%, error budget %.0f%%, n=%d)\n",
			st.Operation, state, st.P99Ms, st.SuccessRate*100, st.ErrorBudgetLeft, st.Observations)
	}

	if deps.Plugins != nil {
		lim := deps.Plugins.Limits()
		b.WriteString("\nPlugins:\n")
		fmt.Fprintf(&b, "- enabled (timeout %s, memory %s, output cap %s)\n",
			lim.Timeout, formatBytes(lim.MemoryBytes), formatBytes(int64(lim.MaxOutputBytes)))
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// probeFailure renders a probe outcome as a diagnostic line. The health
// report treats a failed probe as data, not as a tool failure.
func probeFailure(err error) string {
	if e, ok := canvas.AsError(err); ok {
		return e.Error()
	}
	return "unreachable"
}
