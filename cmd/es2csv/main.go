package main

import (
	"context"
	"os"

	"github.com/sha1n/es2csv/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "es2csv"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "Export search query results to CSV",
		Long:    "Scrolls through the results of an Elasticsearch (or local bleve) query and writes them as a flat CSV file",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithFlags(cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.Flags())

	loadCmd := &cobra.Command{
		Use:   "load [file...]",
		Short: "Load newline-delimited JSON documents into a local bleve index",
		Long:  "Reads documents or Elasticsearch hit envelopes, one per line, from files or standard input (-) into a local index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunLoadWithDeps(context.Background(), app.DefaultRunParams(), cmd.Flags(), args)
		},
	}
	app.RegisterLoadFlags(loadCmd.Flags())
	rootCmd.AddCommand(loadCmd)

	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func runWithFlags(flags *pflag.FlagSet, version string) error {
	return app.RunWithDeps(context.Background(), app.DefaultRunParams(), flags, version)
}
