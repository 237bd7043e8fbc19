package pgquerier

import "context"

// Generate is a convenience function to run a full generation against a live
// database.
func Generate(ctx context.Context, dbConfig DatabaseConfig, queriesDir, outDir string) error {
	client := NewClient(dbConfig)
	return client.Generate(ctx, GenerateOptions{
		Queries: queriesDir,
		Out:     outDir,
	})
}

// GenerateFromSchema is a convenience function to run a generation against a
// temporary embedded PostgreSQL built from the given DDL files. No live
// database is needed.
func GenerateFromSchema(ctx context.Context, queriesDir, outDir string, schemaFiles ...string) error {
	client := NewClient(DatabaseConfig{})
	return client.Generate(ctx, GenerateOptions{
		Queries:     queriesDir,
		Out:         outDir,
		SchemaFiles: schemaFiles,
	})
}

// Check is a convenience function to validate annotated SQL against a live
// database without generating anything.
func Check(ctx context.Context, dbConfig DatabaseConfig, queriesDir string) error {
	client := NewClient(dbConfig)
	return client.Check(ctx, CheckOptions{Queries: queriesDir})
}
