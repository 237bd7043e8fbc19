// Package generate implements the generate command: discover annotated SQL
// files, describe every query against a live (or ephemeral) PostgreSQL,
// resolve types, and write the typed accessor package.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pgschema/pgquerier/cmd/util"
	"github.com/pgschema/pgquerier/internal/catalog"
	"github.com/pgschema/pgquerier/internal/codegen"
	"github.com/pgschema/pgquerier/internal/config"
	"github.com/pgschema/pgquerier/internal/logger"
	"github.com/pgschema/pgquerier/internal/parser"
	"github.com/pgschema/pgquerier/internal/postgres"
	"github.com/pgschema/pgquerier/internal/report"
	"github.com/pgschema/pgquerier/internal/resolve"
)

// defaultConcurrency bounds concurrent statement describes when neither the
// flag nor the manifest says otherwise.
const defaultConcurrency = 4

// Config is everything one pipeline run needs. The generate and check
// commands both build one from flags, PG* environment, and the optional
// manifest, in that precedence order.
type Config struct {
	Queries     string
	Out         string
	Package     string
	SchemaFiles []string
	Concurrency int
	Connection  util.ConnectionConfig

	// CheckOnly runs the full pipeline but writes nothing.
	CheckOnly bool
}

var (
	generateConfig  Config
	generateCfgFile string
)

var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate typed query accessors from annotated SQL",
	Long: `Generate parses annotated SQL files, describes every query against a
PostgreSQL database, and writes a Go package with one typed accessor per
query. With --schema-file the database is a temporary embedded instance
built from the given DDL instead of a live server.`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return ApplyManifest(cmd, &generateConfig, generateCfgFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context(), &generateConfig)
	},
}

func init() {
	f := GenerateCmd.Flags()
	f.StringVar(&generateConfig.Queries, "queries", "queries", "Directory with annotated *.sql files")
	f.StringVar(&generateConfig.Out, "out", "", "Output directory for generated Go files (required)")
	f.StringVar(&generateConfig.Package, "package", "", "Generated package name (default: out directory base name)")
	f.StringArrayVar(&generateConfig.SchemaFiles, "schema-file", nil, "DDL file for ephemeral mode (repeatable, applied in order)")
	f.IntVar(&generateConfig.Concurrency, "concurrency", 0, "Concurrent statement describes (default 4)")
	f.StringVar(&generateCfgFile, "config", "", "Project manifest (default: pgquerier.yaml if present)")
	AddConnectionFlags(GenerateCmd, &generateConfig.Connection)
}

// AddConnectionFlags registers the shared connection flag set.
func AddConnectionFlags(cmd *cobra.Command, conn *util.ConnectionConfig) {
	f := cmd.Flags()
	f.StringVar(&conn.Host, "host", "localhost", "Database server host")
	f.IntVar(&conn.Port, "port", 5432, "Database server port")
	f.StringVar(&conn.Database, "db", "", "Database name")
	f.StringVar(&conn.User, "user", "", "Database user name")
	f.StringVar(&conn.Password, "password", "", "Database password")
	f.StringVar(&conn.SSLMode, "sslmode", "", "SSL mode")
}

// ApplyManifest merges PG* environment and the manifest into cfg. Explicit
// flags win over the environment, which wins over the manifest. The check
// command shares it, which is why it is exported.
func ApplyManifest(cmd *cobra.Command, cfg *Config, cfgFile string) error {
	util.ApplyEnv(cmd, &cfg.Connection)

	var manifest *config.Config
	var err error
	if cfgFile != "" {
		manifest, err = config.Load(cfgFile)
	} else {
		manifest, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("queries") && manifest.Queries != "" {
		cfg.Queries = manifest.Queries
	}
	if cfg.Out == "" {
		cfg.Out = manifest.Out
	}
	if cfg.Package == "" {
		cfg.Package = manifest.Package
	}
	if len(cfg.SchemaFiles) == 0 {
		cfg.SchemaFiles = manifest.SchemaFiles
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = manifest.Concurrency
	}
	mc := manifest.Connection
	conn := &cfg.Connection
	if !cmd.Flags().Changed("host") && os.Getenv("PGHOST") == "" && mc.Host != "" {
		conn.Host = mc.Host
	}
	if !cmd.Flags().Changed("port") && os.Getenv("PGPORT") == "" && mc.Port != 0 {
		conn.Port = mc.Port
	}
	if conn.Database == "" {
		conn.Database = mc.Database
	}
	if conn.User == "" {
		conn.User = mc.User
	}
	if conn.Password == "" {
		conn.Password = mc.Password
	}
	if conn.SSLMode == "" {
		conn.SSLMode = mc.SSLMode
	}

	if !cfg.CheckOnly && cfg.Out == "" {
		return fmt.Errorf("output directory is required (use --out or the manifest)")
	}
	if len(cfg.SchemaFiles) > 0 {
		return nil
	}
	return util.ValidateConnection(conn)
}

// ErrDiagnostics signals that the run completed but collected diagnostics;
// the full report has already been rendered.
var ErrDiagnostics = errors.New("errors were found")

// Run executes the whole pipeline.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Get()
	collector := &report.Collector{}

	if cfg.Package == "" && cfg.Out != "" {
		cfg.Package = filepath.Base(cfg.Out)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	conn := cfg.Connection
	conn.ApplicationName = "pgquerier"

	// Ephemeral mode: stand up a throwaway server and point the ordinary
	// live pipeline at it.
	if len(cfg.SchemaFiles) > 0 {
		instance, err := postgres.Start(embeddedpostgres.V16)
		if err != nil {
			return err
		}
		defer instance.Stop()

		for _, path := range cfg.SchemaFiles {
			if d := instance.ApplySchemaFile(ctx, path); d != nil {
				collector.Add(*d)
			}
		}
		if collector.HasErrors() {
			renderReport(collector)
			return ErrDiagnostics
		}
		conn.Host, conn.Port, conn.Database, conn.User, conn.Password = instance.ConnectionInfo()
		conn.SSLMode = "disable"
	}

	modules, err := parseQueryDir(cfg.Queries, collector)
	if err != nil {
		return err
	}

	descs, err := describeAll(ctx, &conn, modules, concurrency, collector)
	if err != nil {
		return err
	}

	// Merge phase: one dedicated connection, one goroutine, in input order.
	catalogConn, err := util.Connect(ctx, &conn)
	if err != nil {
		return err
	}
	defer catalogConn.Close(ctx)

	introspector := catalog.NewIntrospector(catalogConn, catalog.NewRegistry())
	builder := resolve.NewBuilder(introspector, collector)
	for _, mod := range modules {
		if err := builder.AddModule(ctx, mod, descs[mod.Path]); err != nil {
			return err
		}
	}

	if cfg.CheckOnly {
		renderReport(collector)
		if collector.HasErrors() {
			return ErrDiagnostics
		}
		queries := 0
		for _, mod := range modules {
			queries += len(mod.Queries)
		}
		fmt.Printf("checked %d queries in %d files: ok\n", queries, len(modules))
		return nil
	}

	files, err := codegen.Emit(builder.Schema(), cfg.Package)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	written := 0
	for _, f := range files {
		path := filepath.Join(cfg.Out, f.Name)
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Debug("Wrote generated file", "path", path, "bytes", len(f.Content))
		written++
	}

	renderReport(collector)
	if collector.HasErrors() {
		return ErrDiagnostics
	}
	fmt.Printf("generated %d files in %s from %d query files\n", written, cfg.Out, len(modules))
	return nil
}

func renderReport(collector *report.Collector) {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	collector.Render(os.Stderr, useColor)
}

// parseQueryDir discovers *.sql files in sorted order and parses each one.
// A file with any parse failure is dropped as a whole unit: it reports its
// diagnostics but contributes no queries downstream.
func parseQueryDir(dir string, collector *report.Collector) ([]*parser.Module, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .sql files found in %s", dir)
	}
	sort.Strings(paths)

	var modules []*parser.Module
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		mod, diags := parser.ParseModule(path, string(content))
		if len(diags) > 0 {
			collector.AddAll(diags)
			// A file with a broken query never emits partially.
			mod.Queries = nil
		}
		modules = append(modules, mod)
	}
	return modules, nil
}

// describeAll prepares and describes every query with bounded concurrency
// over a pool. Results land in per-module slices; diagnostics are collected
// afterwards on the calling goroutine so the collector sees input order.
func describeAll(ctx context.Context, conn *util.ConnectionConfig, modules []*parser.Module, concurrency int, collector *report.Collector) (map[string][]*catalog.StatementDesc, error) {
	pool, err := util.ConnectPool(ctx, conn, concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	type result struct {
		desc *catalog.StatementDesc
		err  error
	}
	results := make(map[string][]result, len(modules))
	for _, mod := range modules {
		results[mod.Path] = make([]result, len(mod.Queries))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for mi, mod := range modules {
		for qi, q := range mod.Queries {
			g.Go(func() error {
				pc, err := pool.Acquire(gctx)
				if err != nil {
					return &report.ConnectionError{Err: err}
				}
				defer pc.Release()

				name := fmt.Sprintf("pgquerier_%d_%d", mi, qi)
				desc, err := catalog.Describe(gctx, pc.Conn(), name, q.SQL)
				if err != nil {
					var pgErr *pgconn.PgError
					if errors.As(err, &pgErr) {
						results[mod.Path][qi] = result{err: err}
						return nil
					}
					return err
				}
				results[mod.Path][qi] = result{desc: desc}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	descs := make(map[string][]*catalog.StatementDesc, len(modules))
	for _, mod := range modules {
		out := make([]*catalog.StatementDesc, len(mod.Queries))
		failed := false
		for qi, q := range mod.Queries {
			res := results[mod.Path][qi]
			if res.err != nil {
				var pgErr *pgconn.PgError
				errors.As(res.err, &pgErr)
				collector.Add(describeDiagnostic(mod.Path, q, pgErr))
				failed = true
				continue
			}
			out[qi] = res.desc
		}
		// A file with a rejected query never emits partially: drop its
		// remaining queries from resolution as well.
		if failed {
			for qi := range out {
				out[qi] = nil
			}
		}
		descs[mod.Path] = out
	}
	return descs, nil
}

// describeDiagnostic maps a server rejection onto the query's span, using
// the server-reported statement position when present.
func describeDiagnostic(path string, q *parser.Query, pgErr *pgconn.PgError) report.Diagnostic {
	span := report.Span{File: path, Line: q.SQLPos.Line, Column: q.SQLPos.Column}
	var snippet string
	caret := 0
	if pgErr.Position > 0 && int(pgErr.Position) <= len(q.SQL)+1 {
		line, col, text := locate(q.SQL, int(pgErr.Position)-1)
		span.Line = q.SQLPos.Line + line
		if line == 0 {
			span.Column = q.SQLPos.Column + col
		} else {
			span.Column = col + 1
		}
		snippet = text
		caret = col + 1
	}
	return report.Diagnostic{
		Class:   report.ClassDatabase,
		Span:    span,
		Message: fmt.Sprintf("query %q: %s", q.Name, pgErr.Message),
		Snippet: snippet,
		Caret:   caret,
	}
}

// locate converts a byte offset within sql to a 0-based (line, column) pair
// and the text of that line.
func locate(sql string, offset int) (line, col int, text string) {
	start := 0
	for i := 0; i < offset && i < len(sql); i++ {
		if sql[i] == '\n' {
			line++
			start = i + 1
		}
	}
	col = offset - start
	end := strings.IndexByte(sql[start:], '\n')
	if end < 0 {
		text = sql[start:]
	} else {
		text = sql[start : start+end]
	}
	return line, col, text
}
