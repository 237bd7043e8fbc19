package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgschema/pgquerier/internal/logger"
	"github.com/pgschema/pgquerier/internal/report"
)

// maxResolveDepth bounds recursive type resolution. The catalog itself
// forbids value-level self-referential composites, so exceeding this depth
// means the catalog handed us a cyclic graph and the snapshot is broken.
const maxResolveDepth = 32

// ColumnDesc is one result column as reported by prepare/describe.
type ColumnDesc struct {
	Name     string
	TypeOID  uint32
	TableOID uint32
	AttNum   uint16
}

// StatementDesc is the parameter and result shape of a prepared statement.
type StatementDesc struct {
	ParamOIDs []uint32
	Columns   []ColumnDesc
}

// UnsupportedTypeError marks a scalar with no entry in the built-in mapping
// table. It is scoped to the query that referenced the type.
type UnsupportedTypeError struct {
	OID  uint32
	Name string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no Go mapping for type %q (oid %d)", e.Name, e.OID)
}

// Describe prepares the statement, reads its parameter OIDs and result field
// descriptors, and deallocates it again. Nothing is executed. A server
// rejection comes back as a *pgconn.PgError for the caller to attribute to
// the query's span; every other failure is connection loss and fatal.
func Describe(ctx context.Context, conn *pgx.Conn, name, sql string) (*StatementDesc, error) {
	sd, err := conn.Prepare(ctx, name, sql)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && !conn.IsClosed() {
			return nil, pgErr
		}
		return nil, &report.ConnectionError{Err: err}
	}

	desc := &StatementDesc{
		ParamOIDs: append([]uint32(nil), sd.ParamOIDs...),
	}
	for _, f := range sd.Fields {
		desc.Columns = append(desc.Columns, ColumnDesc{
			Name:     f.Name,
			TypeOID:  f.DataTypeOID,
			TableOID: f.TableOID,
			AttNum:   f.TableAttributeNumber,
		})
	}

	if err := conn.Deallocate(ctx, name); err != nil {
		return nil, &report.ConnectionError{Err: err}
	}
	return desc, nil
}

// Introspector resolves catalog type definitions over one dedicated
// connection and writes them into the shared Registry. All calls happen on
// the merge-phase goroutine, so Registry writes are never concurrent.
type Introspector struct {
	conn *pgx.Conn
	reg  *Registry

	attrNotNull map[attrKey]bool
	relOIDs     map[string]uint32
}

type attrKey struct {
	rel uint32
	num uint16
}

func NewIntrospector(conn *pgx.Conn, reg *Registry) *Introspector {
	return &Introspector{
		conn:        conn,
		reg:         reg,
		attrNotNull: make(map[attrKey]bool),
		relOIDs:     make(map[string]uint32),
	}
}

// Registry returns the shared type registry.
func (in *Introspector) Registry() *Registry {
	return in.reg
}

const typeQuery = `
SELECT t.typname,
       n.nspname,
       t.typtype::text,
       t.typcategory::text,
       t.typbasetype,
       t.typnotnull,
       t.typelem,
       t.typrelid,
       COALESCE(r.rngsubtype, 0)
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
LEFT JOIN pg_catalog.pg_range r ON r.rngtypid = t.oid
WHERE t.oid = $1
`

const enumLabelsQuery = `
SELECT enumlabel
FROM pg_catalog.pg_enum
WHERE enumtypid = $1
ORDER BY enumsortorder
`

const compositeFieldsQuery = `
SELECT attname, atttypid
FROM pg_catalog.pg_attribute
WHERE attrelid = $1
  AND attnum > 0
  AND NOT attisdropped
ORDER BY attnum
`

const attrNotNullQuery = `
SELECT attnotnull
FROM pg_catalog.pg_attribute
WHERE attrelid = $1
  AND attnum = $2
  AND NOT attisdropped
`

const relationOIDQuery = `SELECT to_regclass($1)::oid`

// ResolveOID resolves one catalog type identity, recursively fetching the
// definitions of every type it references. Results are memoized in the
// Registry, so a nested type shared by many queries resolves once per run.
func (in *Introspector) ResolveOID(ctx context.Context, oid uint32) (*Type, error) {
	return in.resolve(ctx, oid, 0)
}

func (in *Introspector) resolve(ctx context.Context, oid uint32, depth int) (*Type, error) {
	if t, ok := in.reg.Lookup(oid); ok {
		return t, nil
	}
	if depth > maxResolveDepth {
		return nil, &report.ConsistencyError{
			Message: fmt.Sprintf("type resolution exceeded depth %d at oid %d; the catalog type graph appears cyclic", maxResolveDepth, oid),
		}
	}

	var (
		name, schema         string
		typtype, typcategory string
		baseOID              uint32
		notNull              bool
		elemOID              uint32
		relID                uint32
		rangeSubtype         uint32
	)
	row := in.conn.QueryRow(ctx, typeQuery, oid)
	if err := row.Scan(&name, &schema, &typtype, &typcategory, &baseOID, &notNull, &elemOID, &relID, &rangeSubtype); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &report.ConsistencyError{
				Message: fmt.Sprintf("type with oid %d not found in catalog; the schema changed mid-run", oid),
			}
		}
		return nil, &report.ConnectionError{Err: err}
	}

	logger.Get().Debug("resolving catalog type", "oid", oid, "name", name, "typtype", typtype)

	t := &Type{OID: oid, Schema: schema, Name: name}

	// The built-in mapping table takes precedence: it covers base scalars
	// and the built-in range types.
	if goType, ok := ScalarGoType(oid); ok {
		t.Kind = KindScalar
		t.Go = goType
		in.reg.Add(t)
		return t, nil
	}

	switch {
	case typtype == "e":
		labels, err := in.enumLabels(ctx, oid)
		if err != nil {
			return nil, err
		}
		t.Kind = KindEnum
		t.Labels = labels

	case typtype == "d":
		base, err := in.resolve(ctx, baseOID, depth+1)
		if err != nil {
			return nil, err
		}
		t.Kind = KindDomain
		t.Base = base
		t.NotNull = notNull

	case typtype == "c":
		fields, err := in.compositeFields(ctx, relID, depth)
		if err != nil {
			return nil, err
		}
		t.Kind = KindComposite
		t.Fields = fields

	case typtype == "r":
		elem, err := in.resolve(ctx, rangeSubtype, depth+1)
		if err != nil {
			return nil, err
		}
		t.Kind = KindRange
		t.Elem = elem

	case typtype == "b" && typcategory == "A" && elemOID != 0:
		elem, err := in.resolve(ctx, elemOID, depth+1)
		if err != nil {
			return nil, err
		}
		t.Kind = KindArray
		t.Elem = elem

	default:
		// Base scalar with no mapping entry, or a kind outside the
		// supported set (e.g. multirange, pseudo-types).
		return nil, &UnsupportedTypeError{OID: oid, Name: t.DisplayName()}
	}

	in.reg.Add(t)
	return t, nil
}

func (in *Introspector) enumLabels(ctx context.Context, oid uint32) ([]string, error) {
	rows, err := in.conn.Query(ctx, enumLabelsQuery, oid)
	if err != nil {
		return nil, &report.ConnectionError{Err: err}
	}
	labels, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &report.ConnectionError{Err: err}
	}
	if len(labels) == 0 {
		return nil, &report.ConsistencyError{
			Message: fmt.Sprintf("enum type with oid %d has no labels; the schema changed mid-run", oid),
		}
	}
	return labels, nil
}

func (in *Introspector) compositeFields(ctx context.Context, relID uint32, depth int) ([]Field, error) {
	rows, err := in.conn.Query(ctx, compositeFieldsQuery, relID)
	if err != nil {
		return nil, &report.ConnectionError{Err: err}
	}
	type rawField struct {
		name string
		oid  uint32
	}
	var raw []rawField
	for rows.Next() {
		var f rawField
		if err := rows.Scan(&f.name, &f.oid); err != nil {
			rows.Close()
			return nil, &report.ConnectionError{Err: err}
		}
		raw = append(raw, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &report.ConnectionError{Err: err}
	}

	fields := make([]Field, 0, len(raw))
	for _, f := range raw {
		ft, err := in.resolve(ctx, f.oid, depth+1)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: f.name, Type: ft})
	}
	return fields, nil
}

// AttrNotNull reports whether a table column carries a NOT NULL constraint.
// Lookups are memoized per run. A column that cannot be found resolves to
// nullable rather than failing: the policy is one-way, and false "nullable"
// is always safe.
func (in *Introspector) AttrNotNull(ctx context.Context, tableOID uint32, attNum uint16) (bool, error) {
	key := attrKey{rel: tableOID, num: attNum}
	if v, ok := in.attrNotNull[key]; ok {
		return v, nil
	}
	var notNull bool
	err := in.conn.QueryRow(ctx, attrNotNullQuery, tableOID, int16(attNum)).Scan(&notNull)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			notNull = false
		} else {
			return false, &report.ConnectionError{Err: err}
		}
	}
	in.attrNotNull[key] = notNull
	return notNull, nil
}

// RelationOID resolves a relation name, optionally schema-qualified, to its
// pg_class OID. Unqualified names resolve through the connection's
// search_path, exactly as they did for the statement being described. A name
// that resolves to nothing yields 0: the nullability policy then simply has
// no table to trust. Lookups are memoized per run.
func (in *Introspector) RelationOID(ctx context.Context, schema, name string) (uint32, error) {
	qualified := quoteIdent(name)
	if schema != "" {
		qualified = quoteIdent(schema) + "." + qualified
	}
	if oid, ok := in.relOIDs[qualified]; ok {
		return oid, nil
	}
	var oid *uint32
	if err := in.conn.QueryRow(ctx, relationOIDQuery, qualified).Scan(&oid); err != nil {
		return 0, &report.ConnectionError{Err: err}
	}
	var v uint32
	if oid != nil {
		v = *oid
	}
	in.relOIDs[qualified] = v
	return v, nil
}

// quoteIdent double-quotes an identifier so to_regclass treats it literally
// instead of re-parsing case and dots.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
