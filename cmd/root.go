package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pgschema/pgquerier/cmd/check"
	"github.com/pgschema/pgquerier/cmd/generate"
	"github.com/pgschema/pgquerier/internal/logger"
	"github.com/pgschema/pgquerier/internal/version"
)

var Debug bool

// Build-time variables set via ldflags
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var RootCmd = &cobra.Command{
	Use:   "pgquerier",
	Short: "Typed Go accessors from annotated SQL",
	Long: fmt.Sprintf(`pgquerier turns annotated SQL files into statically typed Go accessor
code by describing every query against a live PostgreSQL database.

Version: %s@%s %s %s

Commands:
  generate  Generate typed query accessors
  check     Validate annotated SQL without generating
  version   Show version information

Use "pgquerier [command] --help" for more information about a command.`,
		version.App(), GitCommit, platform(), BuildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable debug logging")
	RootCmd.AddCommand(generate.GenerateCmd)
	RootCmd.AddCommand(check.CheckCmd)
	RootCmd.AddCommand(versionCmd)
}

func setupLogger() {
	level := slog.LevelInfo
	if Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	logger.SetGlobal(slog.New(handler), Debug)
}

// platform returns the OS/architecture combination
func platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
