package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSpanString(t *testing.T) {
	tests := []struct {
		name string
		span Span
		want string
	}{
		{
			name: "full span",
			span: Span{File: "users.sql", Line: 3, Column: 7},
			want: "users.sql:3:7",
		},
		{
			name: "file only",
			span: Span{File: "users.sql"},
			want: "users.sql",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.String(); got != tt.want {
				t.Errorf("Span.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollectorOrder(t *testing.T) {
	var c Collector
	c.Add(Diagnostic{Class: ClassSyntax, Span: Span{File: "a.sql", Line: 1, Column: 1}, Message: "first"})
	c.AddAll([]Diagnostic{
		{Class: ClassDatabase, Span: Span{File: "b.sql", Line: 2, Column: 1}, Message: "second"},
		{Class: ClassUnsupportedType, Span: Span{File: "b.sql", Line: 5, Column: 1}, Message: "third"},
	})

	if !c.HasErrors() {
		t.Fatal("expected HasErrors() to be true")
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	var got []string
	for _, d := range c.Diagnostics() {
		got = append(got, d.Message)
	}
	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostic order mismatch (-want +got):\n%s", diff)
	}

	if n := c.CountByClass(ClassDatabase); n != 1 {
		t.Errorf("CountByClass(database) = %d, want 1", n)
	}
}

func TestRenderFormat(t *testing.T) {
	var c Collector
	c.Add(Diagnostic{
		Class:   ClassSyntax,
		Span:    Span{File: "users.sql", Line: 3, Column: 12},
		Message: "unknown cardinality \"two\"",
		Snippet: "--! get_user : two",
		Caret:   16,
	})

	var buf strings.Builder
	c.Render(&buf, false)
	out := buf.String()

	wantLines := []string{
		"users.sql:3:12: syntax: unknown cardinality \"two\"",
		"    --! get_user : two",
		"                   ^",
		"1 error(s) found",
	}
	for _, line := range wantLines {
		if !strings.Contains(out, line) {
			t.Errorf("rendered report missing line %q; got:\n%s", line, out)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	var c Collector
	var buf strings.Builder
	c.Render(&buf, false)
	if buf.Len() != 0 {
		t.Errorf("empty collector rendered output: %q", buf.String())
	}
}

func TestFatalErrors(t *testing.T) {
	cause := errors.New("broken pipe")
	connErr := &ConnectionError{Err: cause}
	if !errors.Is(connErr, cause) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if !strings.Contains(connErr.Error(), "broken pipe") {
		t.Errorf("ConnectionError.Error() = %q, want cause included", connErr.Error())
	}

	consErr := &ConsistencyError{Message: "type 16384 vanished"}
	if !strings.Contains(consErr.Error(), "type 16384 vanished") {
		t.Errorf("ConsistencyError.Error() = %q", consErr.Error())
	}
}

func TestDiagnosticAsError(t *testing.T) {
	var err error = Diagnostic{
		Class:   ClassUnsupportedType,
		Span:    Span{File: "q.sql", Line: 9, Column: 1},
		Message: "no Go mapping for type \"money\"",
	}
	want := "q.sql:9:1: unsupported type: no Go mapping for type \"money\""
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
