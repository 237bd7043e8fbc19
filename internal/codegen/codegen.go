// Package codegen renders Go accessor modules from a resolved schema. Emit
// is a pure function of its input: identical schemas produce byte-identical
// files, so callers may treat generation as a cacheable build step. All
// output is passed through goimports, which prunes the superset import
// blocks the templates emit and applies gofmt formatting.
package codegen

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/pgschema/pgquerier/internal/catalog"
	"github.com/pgschema/pgquerier/internal/parser"
	"github.com/pgschema/pgquerier/internal/resolve"
)

// File is one generated source unit.
type File struct {
	Name    string
	Content []byte
}

// Emit renders all output files for a schema: db.go, types.go when any
// user-defined catalog type is referenced, and one <base>.sql.go per input
// module.
func Emit(schema *resolve.Schema, pkg string) ([]File, error) {
	var files []File

	dbFile, err := render("db.go", dbTemplate, dbData{Package: pkg})
	if err != nil {
		return nil, err
	}
	files = append(files, File{Name: "db.go", Content: dbFile})

	if len(schema.TypeDefs) > 0 || len(schema.RegisterNames) > 0 {
		data := buildTypesData(schema, pkg)
		content, err := render("types.go", typesTemplate, data)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: "types.go", Content: content})
	}

	for _, mod := range schema.Modules {
		// A module with no surviving queries emits nothing. That covers
		// files whose queries all failed and files that were empty.
		if len(mod.Queries) == 0 {
			continue
		}
		data := buildModuleData(mod, pkg)
		name := moduleFileName(mod.Path)
		content, err := render(name, moduleTemplate, data)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: name, Content: content})
	}
	return files, nil
}

// moduleFileName maps an input path to its generated file name:
// queries/users.sql -> users.sql.go.
func moduleFileName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".sql")
	return base + ".sql.go"
}

func render(name string, tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template for %s: %w", name, err)
	}
	formatted, err := imports.Process(name, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", name, err)
	}
	return formatted, nil
}

type dbData struct {
	Package string
}

type fieldView struct {
	Name string
	Type string
}

type structView struct {
	Name   string
	Fields []fieldView
}

type enumConstView struct {
	Name  string
	Label string
}

type enumView struct {
	GoName string
	PgName string
	Consts []enumConstView
}

type compositeView struct {
	GoName string
	PgName string
	Fields []fieldView
}

type domainView struct {
	GoName string
	PgName string
	BaseGo string
}

type typesData struct {
	Package       string
	Enums         []enumView
	Composites    []compositeView
	Domains       []domainView
	RegisterNames []string
}

func buildTypesData(schema *resolve.Schema, pkg string) typesData {
	data := typesData{Package: pkg, RegisterNames: schema.RegisterNames}
	for _, def := range schema.TypeDefs {
		switch def.Type.Kind {
		case catalog.KindEnum:
			ev := enumView{GoName: def.GoName, PgName: def.Type.DisplayName()}
			used := make(map[string]int)
			for _, label := range def.Type.Labels {
				constName := def.GoName + resolve.CamelCase(label)
				used[constName]++
				if used[constName] > 1 {
					constName = fmt.Sprintf("%s%d", constName, used[constName])
				}
				ev.Consts = append(ev.Consts, enumConstView{Name: constName, Label: label})
			}
			data.Enums = append(data.Enums, ev)
		case catalog.KindComposite:
			cv := compositeView{GoName: def.GoName, PgName: def.Type.DisplayName()}
			for _, f := range def.Fields {
				cv.Fields = append(cv.Fields, fieldView{Name: f.GoName, Type: f.GoType})
			}
			data.Composites = append(data.Composites, cv)
		case catalog.KindDomain:
			data.Domains = append(data.Domains, domainView{
				GoName: def.GoName,
				PgName: def.Type.DisplayName(),
				BaseGo: def.BaseGo,
			})
		}
	}
	return data
}

type queryView struct {
	GoName      string
	SourceName  string
	ConstName   string
	SQLLiteral  string
	Cardinality string
	ParamsType  string // empty when the query takes no parameters
	CallArgs    string // ", arg.A, arg.B" suffix for the db call
	RowType     string
}

type moduleData struct {
	Package string
	Source  string
	Structs []structView
	Queries []queryView
}

func buildModuleData(mod *resolve.Module, pkg string) moduleData {
	data := moduleData{Package: pkg, Source: mod.Path}
	for _, s := range mod.Structs {
		sv := structView{Name: s.Name}
		for _, f := range s.Fields {
			sv.Fields = append(sv.Fields, fieldView{Name: f.GoName, Type: f.GoType})
		}
		data.Structs = append(data.Structs, sv)
	}
	for _, q := range mod.Queries {
		qv := queryView{
			GoName:      q.GoName,
			SourceName:  q.Name,
			ConstName:   constName(q.GoName),
			SQLLiteral:  sqlLiteral(q.SQL),
			Cardinality: string(q.Cardinality),
		}
		if q.Params != nil {
			qv.ParamsType = q.Params.Name
			var args []string
			for _, f := range q.Params.Fields {
				args = append(args, "arg."+f.GoName)
			}
			qv.CallArgs = ", " + strings.Join(args, ", ")
		}
		if q.Cardinality != parser.CardinalityExecute {
			qv.RowType = q.Row.Name
		}
		data.Queries = append(data.Queries, qv)
	}
	return data
}

// constName lowers the first rune of the accessor name for the SQL constant:
// GetUser -> getUserSQL.
func constName(goName string) string {
	return strings.ToLower(goName[:1]) + goName[1:] + "SQL"
}

// sqlLiteral renders SQL as a raw string literal, falling back to an
// interpreted literal when the text contains a backquote.
func sqlLiteral(sql string) string {
	if !strings.Contains(sql, "`") {
		return "`" + sql + "`"
	}
	return fmt.Sprintf("%q", sql)
}
