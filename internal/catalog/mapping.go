package catalog

import "github.com/jackc/pgx/v5/pgtype"

// scalarGoTypes is the fixed mapping from built-in scalar OIDs to their Go
// rendition (the non-null value form; nullable columns wrap in a pointer).
// A scalar OID missing from this table is an unsupported type, reported per
// query. Extend by adding entries.
var scalarGoTypes = map[uint32]string{
	pgtype.BoolOID:        "bool",
	pgtype.Int2OID:        "int16",
	pgtype.Int4OID:        "int32",
	pgtype.Int8OID:        "int64",
	pgtype.Float4OID:      "float32",
	pgtype.Float8OID:      "float64",
	pgtype.NumericOID:     "pgtype.Numeric",
	pgtype.TextOID:        "string",
	pgtype.VarcharOID:     "string",
	pgtype.BPCharOID:      "string",
	pgtype.NameOID:        "string",
	pgtype.ByteaOID:       "[]byte",
	pgtype.UUIDOID:        "pgtype.UUID",
	pgtype.DateOID:        "time.Time",
	pgtype.TimestampOID:   "time.Time",
	pgtype.TimestamptzOID: "time.Time",
	pgtype.TimeOID:        "pgtype.Time",
	pgtype.IntervalOID:    "pgtype.Interval",
	pgtype.JSONOID:        "[]byte",
	pgtype.JSONBOID:       "[]byte",
	pgtype.InetOID:        "netip.Prefix",
	pgtype.CIDROID:        "netip.Prefix",
	pgtype.MacaddrOID:     "net.HardwareAddr",
	pgtype.OIDOID:         "uint32",

	// Built-in range types render as concrete pgtype.Range instantiations.
	pgtype.Int4rangeOID: "pgtype.Range[pgtype.Int4]",
	pgtype.Int8rangeOID: "pgtype.Range[pgtype.Int8]",
	pgtype.NumrangeOID:  "pgtype.Range[pgtype.Numeric]",
	pgtype.TsrangeOID:   "pgtype.Range[pgtype.Timestamp]",
	pgtype.TstzrangeOID: "pgtype.Range[pgtype.Timestamptz]",
	pgtype.DaterangeOID: "pgtype.Range[pgtype.Date]",
}

// ScalarGoType returns the Go rendition for a built-in scalar OID.
func ScalarGoType(oid uint32) (string, bool) {
	goType, ok := scalarGoTypes[oid]
	return goType, ok
}
