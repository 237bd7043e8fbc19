// Package resolve builds the canonical, structurally deduplicated schema
// shared by every query in a run. It consumes raw describe output, asks the
// catalog layer for type definitions, applies the nullability policy, and
// mints exactly one generated name per distinct structural shape.
//
// Modules must be added in a fixed order (file order, then in-file order);
// that ordering is what makes generated output deterministic, not merely an
// optimization.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pgschema/pgquerier/internal/catalog"
	"github.com/pgschema/pgquerier/internal/parser"
	"github.com/pgschema/pgquerier/internal/report"
)

// TypeSource resolves catalog type identities and column constraints. It is
// implemented by catalog.Introspector; tests substitute a fake.
type TypeSource interface {
	ResolveOID(ctx context.Context, oid uint32) (*catalog.Type, error)
	AttrNotNull(ctx context.Context, tableOID uint32, attNum uint16) (bool, error)
	RelationOID(ctx context.Context, schema, name string) (uint32, error)
}

// Field is one field of a generated struct (parameter holder or row).
type Field struct {
	GoName   string
	Column   string // source column or parameter name
	Type     *catalog.Type
	GoType   string // final rendition, pointer-wrapped when nullable
	Nullable bool
}

// Struct is a generated named struct shape. Two queries whose ordered
// (name, type, nullability) sequences are pairwise identical share one
// Struct; any difference mints a distinct one.
type Struct struct {
	Name   string
	Fields []Field
}

// Query is a fully resolved query signature ready for emission.
type Query struct {
	Name        string
	GoName      string
	Cardinality parser.Cardinality
	SQL         string
	Params      *Struct // nil when the query takes no parameters
	Row         *Struct // nil for execute cardinality
}

// Module owns its ordered queries and the structs first minted by it.
type Module struct {
	Path    string
	Queries []*Query
	Structs []*Struct
}

// TypeDef is a user-defined catalog type that needs a Go definition.
type TypeDef struct {
	Type   *catalog.Type
	GoName string
	Fields []Field // composite only
	BaseGo string  // domain only
}

// Schema is the complete resolved output of one run.
type Schema struct {
	TypeDefs []*TypeDef
	// RegisterNames lists the qualified catalog names of user-defined types
	// that generated code must register with the connection's type map, in
	// dependency order (element types before wrappers).
	RegisterNames []string
	Modules       []*Module
}

// Builder accumulates modules into a Schema. It is single-goroutine by
// design: describe results may be fetched concurrently, but they are merged
// here by one owner.
type Builder struct {
	src       TypeSource
	collector *report.Collector

	structByKey map[string]*Struct
	takenNames  map[string]bool
	typeDefs    map[uint32]*TypeDef
	registered  map[string]bool
	accessors   map[string]string // accessor name -> defining file

	schema *Schema
}

func NewBuilder(src TypeSource, collector *report.Collector) *Builder {
	return &Builder{
		src:         src,
		collector:   collector,
		structByKey: make(map[string]*Struct),
		takenNames:  make(map[string]bool),
		typeDefs:    make(map[uint32]*TypeDef),
		registered:  make(map[string]bool),
		accessors:   make(map[string]string),
		schema:      &Schema{},
	}
}

// Schema returns everything resolved so far.
func (b *Builder) Schema() *Schema {
	return b.schema
}

// AddModule resolves one parsed module. descs[i] is the describe result for
// mod.Queries[i]; a nil entry means describing failed (its diagnostic is
// already collected) and the query is skipped. Fatal errors (connection
// loss, catalog inconsistency) abort; everything else becomes a diagnostic
// scoped to the affected query.
func (b *Builder) AddModule(ctx context.Context, mod *parser.Module, descs []*catalog.StatementDesc) error {
	if len(descs) != len(mod.Queries) {
		return fmt.Errorf("module %s: %d describe results for %d queries", mod.Path, len(descs), len(mod.Queries))
	}

	out := &Module{Path: mod.Path}
	b.schema.Modules = append(b.schema.Modules, out)

	for i, q := range mod.Queries {
		if descs[i] == nil {
			continue
		}
		rq, err := b.resolveQuery(ctx, mod.Path, q, descs[i], out)
		if err != nil {
			var unsupported *catalog.UnsupportedTypeError
			if errors.As(err, &unsupported) {
				b.collector.Add(report.Diagnostic{
					Class:   report.ClassUnsupportedType,
					Span:    report.Span{File: mod.Path, Line: q.NamePos.Line, Column: q.NamePos.Column},
					Message: fmt.Sprintf("query %q: %v", q.Name, unsupported),
				})
				continue
			}
			return err
		}
		if rq != nil {
			out.Queries = append(out.Queries, rq)
		}
	}
	return nil
}

func (b *Builder) resolveQuery(ctx context.Context, path string, q *parser.Query, desc *catalog.StatementDesc, mod *Module) (*Query, error) {
	params, err := b.resolveParams(ctx, q, desc)
	if err != nil {
		return nil, err
	}
	columns, err := b.resolveColumns(ctx, q, desc)
	if err != nil {
		return nil, err
	}

	rq := &Query{
		Name:        q.Name,
		GoName:      CamelCase(q.Name),
		Cardinality: q.Cardinality,
		SQL:         q.SQL,
	}

	// All modules emit into one Go package, so accessor names must be
	// unique across files, not just within one.
	if prev, ok := b.accessors[rq.GoName]; ok {
		b.collector.Add(report.Diagnostic{
			Class:   report.ClassSyntax,
			Span:    report.Span{File: path, Line: q.NamePos.Line, Column: q.NamePos.Column},
			Message: fmt.Sprintf("query %q generates accessor %s, which is already generated by a query in %s", q.Name, rq.GoName, prev),
		})
		return nil, nil
	}
	b.accessors[rq.GoName] = path

	if q.Cardinality != parser.CardinalityExecute && len(columns) == 0 {
		b.collector.Add(report.Diagnostic{
			Class:   report.ClassSyntax,
			Span:    report.Span{File: path, Line: q.NamePos.Line, Column: q.NamePos.Column},
			Message: fmt.Sprintf("query %q is declared %q but the statement returns no columns", q.Name, q.Cardinality),
		})
		return nil, nil
	}

	if len(params) > 0 {
		rq.Params = b.mintStruct(rq.GoName+"Params", params, mod)
	}
	if q.Cardinality != parser.CardinalityExecute {
		rq.Row = b.mintStruct(rq.GoName+"Row", columns, mod)
	}
	return rq, nil
}

// resolveParams types each positional parameter. Parameters are rendered as
// non-null values: passing NULL is expressed by a nullable column type on
// the SQL side, not by the accessor signature.
func (b *Builder) resolveParams(ctx context.Context, q *parser.Query, desc *catalog.StatementDesc) ([]Field, error) {
	fields := make([]Field, 0, len(desc.ParamOIDs))
	used := make(map[string]int)
	for i, oid := range desc.ParamOIDs {
		typ, err := b.src.ResolveOID(ctx, oid)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("arg_%d", i+1)
		if i < len(q.Params) {
			name = q.Params[i]
		}
		goType, err := b.goTypeOf(typ, 0)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{
			GoName: uniqueFieldName(CamelCase(name), used),
			Column: name,
			Type:   typ,
			GoType: goType,
		})
	}
	return fields, nil
}

func (b *Builder) resolveColumns(ctx context.Context, q *parser.Query, desc *catalog.StatementDesc) ([]Field, error) {
	an := catalog.AnalyzeNullability(q.SQL)

	// Origin attribution resolves through views to their base tables, so a
	// hint is only trustworthy when the origin table is one the statement
	// names itself. Resolve the named relations to OIDs once per query.
	var origins map[uint32]bool
	if !an.Attenuated {
		origins = make(map[uint32]bool, len(an.Tables))
		for _, ref := range an.Tables {
			oid, err := b.src.RelationOID(ctx, ref.Schema, ref.Name)
			if err != nil {
				return nil, err
			}
			if oid != 0 {
				origins[oid] = true
			}
		}
	}

	fields := make([]Field, 0, len(desc.Columns))
	used := make(map[string]int)
	for _, col := range desc.Columns {
		typ, err := b.src.ResolveOID(ctx, col.TypeOID)
		if err != nil {
			return nil, err
		}

		// Nullability is monotone toward nullable: a column is non-null
		// only when it is an unattenuated reference, to a table the
		// statement names directly, whose column is declared NOT NULL.
		nullable := true
		if !an.Attenuated && col.TableOID != 0 && col.AttNum > 0 && origins[col.TableOID] {
			notNull, err := b.src.AttrNotNull(ctx, col.TableOID, col.AttNum)
			if err != nil {
				return nil, err
			}
			nullable = !notNull
		}

		goType, err := b.goTypeOf(typ, 0)
		if err != nil {
			return nil, err
		}
		if nullable {
			goType = nullableGoType(goType)
		}
		fields = append(fields, Field{
			GoName:   uniqueFieldName(CamelCase(col.Name), used),
			Column:   col.Name,
			Type:     typ,
			GoType:   goType,
			Nullable: nullable,
		})
	}
	return fields, nil
}

// mintStruct returns the canonical Struct for a structural shape. The first
// site that produces a shape names it; later sites reuse that name.
func (b *Builder) mintStruct(preferred string, fields []Field, mod *Module) *Struct {
	key := structKey(fields)
	if s, ok := b.structByKey[key]; ok {
		return s
	}
	s := &Struct{
		Name:   b.uniqueName(preferred),
		Fields: fields,
	}
	b.structByKey[key] = s
	mod.Structs = append(mod.Structs, s)
	return s
}

// structKey is the deduplication key: the ordered (name, type, nullability)
// sequence. Any difference in field name, order, type, or nullability yields
// a different key and therefore a distinct generated name.
func structKey(fields []Field) string {
	var sb strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&sb, "%s\x00%s\x00%t\x01", f.Column, f.GoType, f.Nullable)
	}
	return sb.String()
}

// uniqueName reserves a generated type name, suffixing with 2, 3, ... when a
// different shape already claimed it.
func (b *Builder) uniqueName(preferred string) string {
	name := preferred
	for n := 2; b.takenNames[name]; n++ {
		name = fmt.Sprintf("%s%d", preferred, n)
	}
	b.takenNames[name] = true
	return name
}

func uniqueFieldName(preferred string, used map[string]int) string {
	used[preferred]++
	if used[preferred] == 1 {
		return preferred
	}
	return fmt.Sprintf("%s%d", preferred, used[preferred])
}

// goTypeOf renders the non-null Go type for a catalog type, minting type
// definitions for user-defined enums, composites, and domains on first
// reference. The depth guard turns a synthetically cyclic type graph into a
// fatal consistency fault instead of non-termination.
func (b *Builder) goTypeOf(t *catalog.Type, depth int) (string, error) {
	if depth > 32 {
		return "", &report.ConsistencyError{
			Message: fmt.Sprintf("type %s nests deeper than the catalog allows; the type graph appears cyclic", t.DisplayName()),
		}
	}
	switch t.Kind {
	case catalog.KindScalar:
		return t.Go, nil
	case catalog.KindEnum:
		def, err := b.typeDef(t, depth)
		if err != nil {
			return "", err
		}
		return def.GoName, nil
	case catalog.KindDomain:
		def, err := b.typeDef(t, depth)
		if err != nil {
			return "", err
		}
		return def.GoName, nil
	case catalog.KindComposite:
		def, err := b.typeDef(t, depth)
		if err != nil {
			return "", err
		}
		return def.GoName, nil
	case catalog.KindArray:
		elem, err := b.goTypeOf(t.Elem, depth+1)
		if err != nil {
			return "", err
		}
		b.register(t)
		return "[]" + elem, nil
	case catalog.KindRange:
		elem, err := b.goTypeOf(t.Elem, depth+1)
		if err != nil {
			return "", err
		}
		b.register(t)
		return "pgtype.Range[" + elem + "]", nil
	default:
		return "", fmt.Errorf("unknown type kind %v for %s", t.Kind, t.DisplayName())
	}
}

// typeDef mints (once) the Go definition for a user-defined named type.
func (b *Builder) typeDef(t *catalog.Type, depth int) (*TypeDef, error) {
	if def, ok := b.typeDefs[t.OID]; ok {
		return def, nil
	}

	def := &TypeDef{Type: t, GoName: b.uniqueName(CamelCase(t.Name))}
	b.typeDefs[t.OID] = def

	switch t.Kind {
	case catalog.KindDomain:
		baseGo, err := b.goTypeOf(t.Base, depth+1)
		if err != nil {
			return nil, err
		}
		def.BaseGo = baseGo
	case catalog.KindComposite:
		used := make(map[string]int)
		for _, f := range t.Fields {
			goType, err := b.goTypeOf(f.Type, depth+1)
			if err != nil {
				return nil, err
			}
			def.Fields = append(def.Fields, Field{
				GoName: uniqueFieldName(CamelCase(f.Name), used),
				Column: f.Name,
				Type:   f.Type,
				GoType: goType,
			})
		}
	}

	b.schema.TypeDefs = append(b.schema.TypeDefs, def)
	b.register(t)
	return def, nil
}

// register records a user-defined type for runtime codec registration.
// Element types land before wrappers because goTypeOf recurses first.
func (b *Builder) register(t *catalog.Type) {
	if t.Builtin() {
		return
	}
	name := t.DisplayName()
	if b.registered[name] {
		return
	}
	b.registered[name] = true
	b.schema.RegisterNames = append(b.schema.RegisterNames, name)
}

// nullableGoType wraps a value rendition for a nullable column. Slices stay
// slices (a NULL array scans as nil); everything else takes a pointer.
func nullableGoType(goType string) string {
	if strings.HasPrefix(goType, "[]") {
		return goType
	}
	return "*" + goType
}
