package pgquerier

import (
	"github.com/pgschema/pgquerier/cmd/generate"
	"github.com/pgschema/pgquerier/internal/report"
)

// Re-export important types for external consumption

// Diagnostic is one independent problem found during a run.
type Diagnostic = report.Diagnostic

// Class categorizes a diagnostic.
type Class = report.Class

// Diagnostic classes.
const (
	ClassSyntax          = report.ClassSyntax
	ClassDatabase        = report.ClassDatabase
	ClassUnsupportedType = report.ClassUnsupportedType
)

// ConnectionError is fatal: the database connection was lost or could not be
// established.
type ConnectionError = report.ConnectionError

// ConsistencyError is fatal: the catalog snapshot assumption was violated
// mid-run.
type ConsistencyError = report.ConsistencyError

// ErrDiagnostics is returned when a run completes but collected diagnostics;
// the full report has already been rendered to stderr.
var ErrDiagnostics = generate.ErrDiagnostics
