// Package postgres manages the temporary embedded PostgreSQL instance behind
// the --schema-file workflow: start a throwaway server, apply the declared
// DDL, let the standard live pipeline introspect it, tear everything down.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	_ "github.com/lib/pq"

	"github.com/pgschema/pgquerier/internal/logger"
	"github.com/pgschema/pgquerier/internal/report"
)

const (
	ephemeralDatabase = "pgquerier"
	ephemeralUser     = "pgquerier"
	ephemeralPassword = "pgquerier"
)

// Ephemeral is a temporary embedded PostgreSQL instance.
type Ephemeral struct {
	instance    *embeddedpostgres.EmbeddedPostgres
	db          *sql.DB
	host        string
	port        int
	runtimePath string
}

// findAvailablePort reserves a free TCP port for the server.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// Start brings up an embedded PostgreSQL on a free port with a unique
// runtime directory. The caller must Stop it, including on error paths.
func Start(version embeddedpostgres.PostgresVersion) (*Ephemeral, error) {
	log := logger.Get()

	timestamp := time.Now().Format("20060102_150405_999999")
	runtimePath := filepath.Join(os.TempDir(), fmt.Sprintf("pgquerier-%s", timestamp))

	port, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	log.Debug("Starting embedded PostgreSQL",
		"version", version,
		"port", port,
		"runtime_path", runtimePath,
	)

	pgConfig := embeddedpostgres.DefaultConfig().
		Version(version).
		Database(ephemeralDatabase).
		Username(ephemeralUser).
		Password(ephemeralPassword).
		Port(uint32(port)).
		RuntimePath(runtimePath).
		DataPath(filepath.Join(runtimePath, "data")).
		Logger(io.Discard).
		StartParameters(map[string]string{
			"logging_collector":          "off",
			"log_destination":            "stderr",
			"log_min_messages":           "PANIC",
			"log_statement":              "none",
			"log_min_duration_statement": "-1",
		})

	instance := embeddedpostgres.NewDatabase(pgConfig)
	if err := instance.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded PostgreSQL: %w", err)
	}

	host := "localhost"
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		ephemeralUser, ephemeralPassword, host, port, ephemeralDatabase)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		instance.Stop()
		os.RemoveAll(runtimePath)
		return nil, fmt.Errorf("failed to connect to embedded PostgreSQL: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		instance.Stop()
		os.RemoveAll(runtimePath)
		return nil, fmt.Errorf("failed to ping embedded PostgreSQL: %w", err)
	}

	log.Debug("Embedded PostgreSQL started", "host", host, "port", port)

	return &Ephemeral{
		instance:    instance,
		db:          db,
		host:        host,
		port:        port,
		runtimePath: runtimePath,
	}, nil
}

// ConnectionInfo returns what the live pipeline needs to connect.
func (e *Ephemeral) ConnectionInfo() (host string, port int, database, user, password string) {
	return e.host, e.port, ephemeralDatabase, ephemeralUser, ephemeralPassword
}

// ApplySchemaFile executes one DDL file against the instance. Failures are
// database diagnostics attributed to the schema file, not fatal errors: the
// declared schema is user input like any query file.
func (e *Ephemeral) ApplySchemaFile(ctx context.Context, path string) *report.Diagnostic {
	log := logger.Get()

	ddl, err := os.ReadFile(path)
	if err != nil {
		return &report.Diagnostic{
			Class:   report.ClassDatabase,
			Span:    report.Span{File: path, Line: 1, Column: 1},
			Message: fmt.Sprintf("read schema file: %v", err),
		}
	}

	log.Debug("Applying schema file", "path", path, "bytes", len(ddl))
	if _, err := e.db.ExecContext(ctx, string(ddl)); err != nil {
		return &report.Diagnostic{
			Class:   report.ClassDatabase,
			Span:    report.Span{File: path, Line: 1, Column: 1},
			Message: err.Error(),
		}
	}
	return nil
}

// Stop shuts the instance down and removes its runtime directory.
func (e *Ephemeral) Stop() error {
	log := logger.Get()
	log.Debug("Stopping embedded PostgreSQL", "runtime_path", e.runtimePath)

	if e.db != nil {
		e.db.Close()
	}

	var stopErr error
	if e.instance != nil {
		stopErr = e.instance.Stop()
	}

	if e.runtimePath != "" {
		if err := os.RemoveAll(e.runtimePath); err != nil {
			log.Debug("Failed to clean up runtime directory",
				"path", e.runtimePath,
				"error", err,
			)
		}
	}

	if stopErr != nil {
		return fmt.Errorf("failed to stop embedded PostgreSQL: %w", stopErr)
	}
	return nil
}
