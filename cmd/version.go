package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgschema/pgquerier/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pgquerier %s\n", version.App())
		fmt.Printf("Git commit: %s\n", GitCommit)
		fmt.Printf("Build date: %s\n", BuildDate)
		fmt.Printf("Platform:   %s\n", version.Platform())
	},
}
