// canvas-mcp is an MCP server that lets AI assistants work with a
// Canvas LMS instance on an instructor's behalf. Run with no arguments
// it serves the tool catalog over stdio, which is how MCP hosts spawn
// it; --http switches to the streamable HTTP transport.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	envFile       string
	httpAddr      string
	enablePlugins bool

	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "canvas-mcp",
	Short: "MCP server for Canvas LMS",
	Long: `canvas-mcp exposes Canvas LMS operations to MCP hosts: listing courses,
assignments, submissions and enrollments, posting announcements, grading
(single, rubric-based, and bulk), uploading course files, and running
sandboxed analysis plugins.

Student identities are replaced with stable pseudonyms before any
response reaches the host. Configuration comes from the environment
(CANVAS_API_TOKEN, CANVAS_API_URL, ...), optionally from an env file,
and optionally from a YAML profile for everything but credentials.`,
	Version:      version,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"YAML profile filling fields the environment leaves unset")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"load environment variables from this file first")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "http", "",
		"serve MCP over streamable HTTP on this address instead of stdio")
	rootCmd.PersistentFlags().BoolVar(&enablePlugins, "plugins", false,
		"enable the run_analysis_plugin tool (WASI sandbox)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "canvas-mcp %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "canvas-mcp:", err)
		os.Exit(1)
	}
}
