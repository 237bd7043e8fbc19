package codegen

import "text/template"

const generatedHeader = "// Code generated by pgquerier. DO NOT EDIT.\n"

var dbTemplate = template.Must(template.New("db.go").Parse(generatedHeader + `
package {{.Package}}

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx behavior the generated accessors need.
// *pgx.Conn, pgx.Tx, and *pgxpool.Pool all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New returns a Queries value bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries exposes one method per annotated query.
type Queries struct {
	db DBTX
}
`))

var typesTemplate = template.Must(template.New("types.go").Parse(generatedHeader + `
package {{.Package}}

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)
{{range .Enums}}
// {{.GoName}} mirrors the PostgreSQL enum {{.PgName}}.
type {{.GoName}} string

const (
{{- $e := .}}
{{- range .Consts}}
	{{.Name}} {{$e.GoName}} = {{printf "%q" .Label}}
{{- end}}
)
{{end}}
{{- range .Domains}}
// {{.GoName}} mirrors the PostgreSQL domain {{.PgName}}.
type {{.GoName}} {{.BaseGo}}
{{end}}
{{- range .Composites}}
// {{.GoName}} mirrors the PostgreSQL composite type {{.PgName}}.
type {{.GoName}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}}
{{- end}}
}
{{end}}
{{- if .RegisterNames}}
// RegisterTypes loads the codec for every user-defined PostgreSQL type the
// generated queries reference and registers it with conn's type map. Call it
// once per connection before using Queries.
func RegisterTypes(ctx context.Context, conn *pgx.Conn) error {
	for _, name := range []string{
{{- range .RegisterNames}}
		{{printf "%q" .}},
{{- end}}
	} {
		t, err := conn.LoadType(ctx, name)
		if err != nil {
			return fmt.Errorf("load type %s: %w", name, err)
		}
		conn.TypeMap().RegisterType(t)
	}
	return nil
}
{{- end}}
`))

var moduleTemplate = template.Must(template.New("module").Parse(generatedHeader + `// Source: {{.Source}}

package {{.Package}}

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)
{{range .Structs}}
type {{.Name}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}}
{{- end}}
}
{{end}}
{{- range .Queries}}
const {{.ConstName}} = {{.SQLLiteral}}

{{if eq .Cardinality "one" -}}
// {{.GoName}} runs the {{.SourceName}} query and returns its single row. It
// returns pgx.ErrNoRows when no row matches and pgx.ErrTooManyRows when more
// than one does.
func (q *Queries) {{.GoName}}(ctx context.Context{{if .ParamsType}}, arg {{.ParamsType}}{{end}}) ({{.RowType}}, error) {
	rows, err := q.db.Query(ctx, {{.ConstName}}{{.CallArgs}})
	if err != nil {
		return {{.RowType}}{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[{{.RowType}}])
}
{{else if eq .Cardinality "maybe-one" -}}
// {{.GoName}} runs the {{.SourceName}} query and returns its row, or nil
// when no row matches. More than one matching row is an error.
func (q *Queries) {{.GoName}}(ctx context.Context{{if .ParamsType}}, arg {{.ParamsType}}{{end}}) (*{{.RowType}}, error) {
	rows, err := q.db.Query(ctx, {{.ConstName}}{{.CallArgs}})
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[{{.RowType}}])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}
{{else if eq .Cardinality "many" -}}
// {{.GoName}} runs the {{.SourceName}} query and returns all matching rows.
func (q *Queries) {{.GoName}}(ctx context.Context{{if .ParamsType}}, arg {{.ParamsType}}{{end}}) ([]{{.RowType}}, error) {
	rows, err := q.db.Query(ctx, {{.ConstName}}{{.CallArgs}})
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[{{.RowType}}])
}
{{else -}}
// {{.GoName}} runs the {{.SourceName}} statement and returns the number of
// rows it affected.
func (q *Queries) {{.GoName}}(ctx context.Context{{if .ParamsType}}, arg {{.ParamsType}}{{end}}) (int64, error) {
	tag, err := q.db.Exec(ctx, {{.ConstName}}{{.CallArgs}})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
{{end}}
{{- end}}
`))
