package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools this server exposes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		for _, spec := range tools.All() {
			fmt.Fprintf(out, "%-24s %s\n", spec.Name, spec.Description)
		}
	},
}
