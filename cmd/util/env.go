package util

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// GetEnvWithDefault returns the value of an environment variable or a default value if not set
func GetEnvWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvIntWithDefault returns the value of an environment variable as int or a default value if not set
func GetEnvIntWithDefault(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// ApplyEnv fills connection parameters from the standard PG* environment
// variables, but only where the corresponding flag wasn't explicitly set.
// Flags win over environment; the environment wins over the manifest, which
// the caller merges afterwards.
func ApplyEnv(cmd *cobra.Command, config *ConnectionConfig) {
	if v := GetEnvWithDefault("PGHOST", ""); v != "" && !cmd.Flags().Changed("host") {
		config.Host = v
	}
	if v := GetEnvIntWithDefault("PGPORT", 0); v != 0 && !cmd.Flags().Changed("port") {
		config.Port = v
	}
	if v := GetEnvWithDefault("PGDATABASE", ""); v != "" && !cmd.Flags().Changed("db") {
		config.Database = v
	}
	if v := GetEnvWithDefault("PGUSER", ""); v != "" && !cmd.Flags().Changed("user") {
		config.User = v
	}
	if v := GetEnvWithDefault("PGPASSWORD", ""); v != "" && !cmd.Flags().Changed("password") {
		config.Password = v
	}
	if v := GetEnvWithDefault("PGSSLMODE", ""); v != "" && !cmd.Flags().Changed("sslmode") {
		config.SSLMode = v
	}
}

// ValidateConnection checks that the parameters a live run cannot do without
// are present.
func ValidateConnection(config *ConnectionConfig) error {
	if config.Database == "" {
		return fmt.Errorf("database name is required (use --db flag or PGDATABASE environment variable)")
	}
	if config.User == "" {
		return fmt.Errorf("database user is required (use --user flag or PGUSER environment variable)")
	}
	return nil
}
