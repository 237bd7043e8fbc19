// Package pgquerier provides a programmatic API for generating statically
// typed Go accessor code from annotated SQL queries, using a live PostgreSQL
// database as the source of type truth.
package pgquerier

import (
	"context"

	"github.com/pgschema/pgquerier/cmd/generate"
	"github.com/pgschema/pgquerier/cmd/util"
)

// DatabaseConfig holds connection details for a PostgreSQL database.
type DatabaseConfig struct {
	Host     string // Database server host
	Port     int    // Database server port
	Database string // Database name
	User     string // Database user
	Password string // Database password (optional)
	SSLMode  string // SSL mode (optional)
}

// GenerateOptions configures a generation run.
type GenerateOptions struct {
	Queries     string   // Directory with annotated *.sql files (default: "queries")
	Out         string   // Output directory for generated Go files (required)
	Package     string   // Generated package name (default: out directory base name)
	SchemaFiles []string // DDL files for ephemeral mode; replaces the live connection
	Concurrency int      // Concurrent statement describes (default: 4)
}

// CheckOptions configures a validation run. It is GenerateOptions without
// the output settings.
type CheckOptions struct {
	Queries     string
	SchemaFiles []string
	Concurrency int
}

// Client provides the main interface for pgquerier operations.
type Client struct {
	defaultDB DatabaseConfig
}

// NewClient creates a new pgquerier client with default database configuration.
func NewClient(dbConfig DatabaseConfig) *Client {
	return &Client{defaultDB: dbConfig}
}

// Generate runs the full pipeline and writes the generated package. A
// returned generate.ErrDiagnostics means the run finished but found
// problems; the report has been written to stderr.
func (c *Client) Generate(ctx context.Context, opts GenerateOptions) error {
	cfg := c.pipelineConfig(opts.Queries, opts.SchemaFiles, opts.Concurrency)
	cfg.Out = opts.Out
	cfg.Package = opts.Package
	return generate.Run(ctx, cfg)
}

// Check runs the pipeline without writing anything.
func (c *Client) Check(ctx context.Context, opts CheckOptions) error {
	cfg := c.pipelineConfig(opts.Queries, opts.SchemaFiles, opts.Concurrency)
	cfg.CheckOnly = true
	return generate.Run(ctx, cfg)
}

func (c *Client) pipelineConfig(queries string, schemaFiles []string, concurrency int) *generate.Config {
	if queries == "" {
		queries = "queries"
	}
	return &generate.Config{
		Queries:     queries,
		SchemaFiles: schemaFiles,
		Concurrency: concurrency,
		Connection: util.ConnectionConfig{
			Host:     c.defaultDB.Host,
			Port:     c.defaultDB.Port,
			Database: c.defaultDB.Database,
			User:     c.defaultDB.User,
			Password: c.defaultDB.Password,
			SSLMode:  c.defaultDB.SSLMode,
		},
	}
}
