// Package report defines the diagnostic taxonomy for a pgquerier run and the
// collector that aggregates every independent problem before rendering one
// final report. Non-fatal diagnostics accumulate; connection loss and catalog
// inconsistencies are fatal and travel as ordinary errors instead.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Class categorizes a non-fatal diagnostic.
type Class string

const (
	// ClassSyntax is a malformed directive, unknown cardinality, duplicate
	// query name, or broken statement found by the annotation parser.
	ClassSyntax Class = "syntax"
	// ClassDatabase is a statement the server rejected during describe, or a
	// DDL statement rejected while loading schema files.
	ClassDatabase Class = "database"
	// ClassUnsupportedType is a scalar type with no entry in the built-in
	// mapping table. It skips generation for the affected query only.
	ClassUnsupportedType Class = "unsupported type"
)

// Span locates a diagnostic in an input file. Line and Column are 1-based;
// a zero Line means the position is unknown (e.g. file-level problems).
type Span struct {
	File   string
	Line   int
	Column int
}

func (s Span) String() string {
	if s.Line == 0 {
		return s.File
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Diagnostic is one independent, non-fatal problem found during a run.
type Diagnostic struct {
	Class   Class
	Span    Span
	Message string
	// Snippet optionally carries the offending source line; Caret is the
	// 1-based column within that line to point at (0 for no caret).
	Snippet string
	Caret   int
}

// Error makes Diagnostic usable as an error value in tests and APIs.
func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Class, d.Message)
}

// Collector accumulates diagnostics across the whole run in insertion order.
// It is not safe for concurrent use; the pipeline appends from a single
// goroutine (the merge phase owner).
type Collector struct {
	diags []Diagnostic
}

// Add appends one diagnostic.
func (c *Collector) Add(d Diagnostic) {
	c.diags = append(c.diags, d)
}

// AddAll appends a batch of diagnostics preserving their order.
func (c *Collector) AddAll(ds []Diagnostic) {
	c.diags = append(c.diags, ds...)
}

// HasErrors reports whether any diagnostic was collected.
func (c *Collector) HasErrors() bool {
	return len(c.diags) > 0
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	return len(c.diags)
}

// Diagnostics returns the collected diagnostics in insertion order.
func (c *Collector) Diagnostics() []Diagnostic {
	return c.diags
}

// CountByClass returns how many diagnostics of the given class were collected.
func (c *Collector) CountByClass(class Class) int {
	n := 0
	for _, d := range c.diags {
		if d.Class == class {
			n++
		}
	}
	return n
}

// Render writes the full aggregated report. Each diagnostic prints as
//
//	path:line:col: class: message
//	    <source line>
//	        ^
//
// Coloring is applied only when useColor is true (the color package also
// honors NO_COLOR on its own).
func (c *Collector) Render(w io.Writer, useColor bool) {
	spanColor := color.New(color.Bold)
	classColor := color.New(color.FgRed, color.Bold)
	if !useColor {
		spanColor.DisableColor()
		classColor.DisableColor()
	}

	for _, d := range c.diags {
		fmt.Fprintf(w, "%s: %s: %s\n",
			spanColor.Sprint(d.Span.String()),
			classColor.Sprint(string(d.Class)),
			d.Message)
		if d.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", d.Snippet)
			if d.Caret > 0 && d.Caret <= len(d.Snippet)+1 {
				fmt.Fprintf(w, "    %s^\n", strings.Repeat(" ", d.Caret-1))
			}
		}
	}
	if len(c.diags) > 0 {
		fmt.Fprintf(w, "%d error(s) found\n", len(c.diags))
	}
}

// ConnectionError is fatal: the database connection was lost or could not be
// established, so further introspection is meaningless and the run aborts.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConsistencyError is fatal: a catalog type identity vanished mid-run or the
// type graph turned out cyclic, which means the snapshot assumption the whole
// pipeline relies on was violated.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("catalog consistency violated: %s", e.Message)
}
