// Package check implements the check command: the full generate pipeline
// minus emission. It parses, describes, and resolves every query and reports
// diagnostics without writing a single file.
package check

import (
	"github.com/spf13/cobra"

	"github.com/pgschema/pgquerier/cmd/generate"
)

var (
	checkConfig  generate.Config
	checkCfgFile string
)

var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate annotated SQL against the database without generating",
	Long: `Check runs the same parse, describe, and type-resolution pipeline as
generate, reports every problem it finds, and writes nothing.`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		checkConfig.CheckOnly = true
		return generate.ApplyManifest(cmd, &checkConfig, checkCfgFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return generate.Run(cmd.Context(), &checkConfig)
	},
}

func init() {
	f := CheckCmd.Flags()
	f.StringVar(&checkConfig.Queries, "queries", "queries", "Directory with annotated *.sql files")
	f.StringArrayVar(&checkConfig.SchemaFiles, "schema-file", nil, "DDL file for ephemeral mode (repeatable, applied in order)")
	f.IntVar(&checkConfig.Concurrency, "concurrency", 0, "Concurrent statement describes (default 4)")
	f.StringVar(&checkCfgFile, "config", "", "Project manifest (default: pgquerier.yaml if present)")
	generate.AddConnectionFlags(CheckCmd, &checkConfig.Connection)
}
