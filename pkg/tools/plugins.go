package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/sandbox"
)

func runAnalysisPluginSpec() Spec {
	return Spec{
		Name: "run_analysis_plugin",
		Description: "Run a local WASI analysis plugin in a sandbox. " +
			"The plugin reads the JSON input document from stdin and writes its result to stdout.",
		Params: []ParamSpec{
			{Name: "plugin_path", Type: TypeString, Required: true,
				Description: "Local path to a .wasm WASI plugin."},
			{Name: "input", Type: TypeAny, Nullable: true,
				Description: "JSON document passed to the plugin on stdin."},
		},
		Handler: runAnalysisPlugin,
	}
}

func runAnalysisPlugin(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	if deps.Plugins == nil {
		return "", canvas.NewError(canvas.CodeValidation, "plugin execution is not available on this server").
			WithSuggestion("Start the server with plugin support enabled.")
	}

	path := argString(args, "plugin_path")
	wasm, err := sandbox.LoadModule(path)
	if err != nil {
		return "", err
	}

	var input []byte
	if v, ok := args["input"]; ok && v != nil {
		input, err = json.Marshal(v)
		if err != nil {
			return "", canvas.WrapError(canvas.CodeValidation, err, "input document is not encodable as JSON")
		}
	}

	res, err := deps.Plugins.Run(ctx, wasm, input)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plugin %s completed in %d ms\n", filepath.Base(path), res.Duration.Milliseconds())
	if out := strings.TrimSpace(string(res.Output)); out != "" {
		b.WriteString("Output:\n")
		b.WriteString(out)
	} else {
		b.WriteString("(no output)")
	}
	if log := strings.TrimSpace(string(res.Stderr)); log != "" {
		b.WriteString("\n\nPlugin log:\n")
		b.WriteString(log)
	}
	return b.String(), nil
}
