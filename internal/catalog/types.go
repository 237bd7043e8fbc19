// Package catalog models PostgreSQL catalog types and resolves them by
// asking a live database. A Type is a tagged variant over the closed set of
// kinds the catalog can produce for query parameters and result columns;
// the Registry caches one Type per OID for the lifetime of a run.
package catalog

import "fmt"

// Kind selects which payload fields of a Type are meaningful.
type Kind int

const (
	KindScalar Kind = iota
	KindEnum
	KindDomain
	KindComposite
	KindArray
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEnum:
		return "enum"
	case KindDomain:
		return "domain"
	case KindComposite:
		return "composite"
	case KindArray:
		return "array"
	case KindRange:
		return "range"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field is one attribute of a composite type, in catalog order.
type Field struct {
	Name string
	Type *Type
}

// Type is one resolved catalog type definition.
type Type struct {
	OID    uint32
	Schema string
	Name   string
	Kind   Kind

	// Go is the target rendition for KindScalar (from the built-in mapping
	// table, which also covers the built-in range types).
	Go string
	// Labels holds the enum labels in sort order for KindEnum.
	Labels []string
	// Base is the underlying type for KindDomain; NotNull records whether
	// the domain was declared NOT NULL.
	Base    *Type
	NotNull bool
	// Fields holds the attributes for KindComposite.
	Fields []Field
	// Elem is the element type for KindArray, or the subtype for KindRange.
	Elem *Type
}

// DisplayName returns the type name the way users wrote it: system types
// bare, everything else schema-qualified.
func (t *Type) DisplayName() string {
	if t.Schema == "" || t.Schema == "pg_catalog" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Builtin reports whether the type is a system type rather than one the user
// defined. User-defined types need runtime codec registration in generated
// code; system types do not.
func (t *Type) Builtin() bool {
	return t.Schema == "pg_catalog"
}

// Registry caches one Type per catalog OID and preserves first-resolution
// order. That order feeds generated output, so it must be deterministic:
// the pipeline resolves queries in file order, then in-file order.
type Registry struct {
	byOID map[uint32]*Type
	order []uint32
}

func NewRegistry() *Registry {
	return &Registry{byOID: make(map[uint32]*Type)}
}

// Lookup returns the cached Type for an OID.
func (r *Registry) Lookup(oid uint32) (*Type, bool) {
	t, ok := r.byOID[oid]
	return t, ok
}

// Add records a resolved Type. A second Add for the same OID is ignored:
// an OID denotes exactly one type for the lifetime of a run.
func (r *Registry) Add(t *Type) {
	if _, ok := r.byOID[t.OID]; ok {
		return
	}
	r.byOID[t.OID] = t
	r.order = append(r.order, t.OID)
}

// Types returns all resolved types in first-resolution order.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.order))
	for _, oid := range r.order {
		out = append(out, r.byOID[oid])
	}
	return out
}

// Len returns the number of resolved types.
func (r *Registry) Len() int {
	return len(r.order)
}
