package catalog

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// TableRef names a relation the statement references directly, either in its
// FROM clause or as the target of an INSERT/UPDATE/DELETE. Schema is empty
// for an unqualified reference.
type TableRef struct {
	Schema string
	Name   string
}

// Analysis is the nullability-relevant summary of one statement's parse tree.
type Analysis struct {
	// Attenuated means the statement contains a construct that can turn a
	// non-null table column into a NULL result, so no column-origin hint
	// from the driver may be trusted.
	Attenuated bool
	// Tables lists the relations the statement itself names. Empty when
	// Attenuated is true.
	Tables []TableRef
}

// AnalyzeNullability classifies a statement for the nullability policy.
//
// The server only attributes a result column to a table column (origin table
// OID + attribute number) for plain, unaliased column references, and that
// attribution survives subqueries. So expression results, aggregates, and
// window function outputs already resolve to nullable through the origin
// rule. Two things the origin rule cannot see:
//
//   - a construct elsewhere in the statement that injects NULLs into an
//     otherwise direct column reference: outer joins null-extend one side,
//     GROUP BY with grouping sets/rollup/cube emits NULL grouping columns,
//     set operations (UNION/INTERSECT/EXCEPT) merge branches, and VALUES
//     lists and CTEs carry no column constraints at all;
//   - view expansion: the attribution resolves through a view to its base
//     table column, whose NOT NULL constraint says nothing about what the
//     view's own query (an outer join, say) produces. Tables exists for
//     this case: a hint is only trustworthy when its origin table is one
//     the statement names itself, not one hidden behind a view.
//
// The policy is deliberately coarse: one attenuating construct anywhere
// forces every column of the statement nullable. That is monotone in the
// safe direction, since a false "nullable" costs a pointer while a false
// "non-null" breaks the generated accessor at runtime. A statement this
// analysis cannot parse or positively classify is attenuated for the same
// reason.
func AnalyzeNullability(sql string) Analysis {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return Analysis{Attenuated: true}
	}
	if len(result.Stmts) != 1 || result.Stmts[0].Stmt == nil {
		return Analysis{Attenuated: true}
	}

	var an Analysis
	switch n := result.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		an.Attenuated = selectAttenuates(n.SelectStmt, &an.Tables)
	case *pg_query.Node_InsertStmt:
		// INSERT ... RETURNING reads the columns of exactly one table.
		an.Attenuated = n.InsertStmt.GetWithClause() != nil
		addRangeVar(n.InsertStmt.GetRelation(), &an.Tables)
	case *pg_query.Node_UpdateStmt:
		an.Attenuated = n.UpdateStmt.GetWithClause() != nil || len(n.UpdateStmt.GetFromClause()) > 0
		addRangeVar(n.UpdateStmt.GetRelation(), &an.Tables)
	case *pg_query.Node_DeleteStmt:
		an.Attenuated = n.DeleteStmt.GetWithClause() != nil || len(n.DeleteStmt.GetUsingClause()) > 0
		addRangeVar(n.DeleteStmt.GetRelation(), &an.Tables)
	default:
		return Analysis{Attenuated: true}
	}
	if an.Attenuated {
		an.Tables = nil
	}
	return an
}

// AttenuatesNullability reports whether the statement contains any construct
// that invalidates the driver's column-origin hints. See AnalyzeNullability.
func AttenuatesNullability(sql string) bool {
	return AnalyzeNullability(sql).Attenuated
}

func addRangeVar(rv *pg_query.RangeVar, tables *[]TableRef) {
	if rv == nil {
		return
	}
	*tables = append(*tables, TableRef{Schema: rv.Schemaname, Name: rv.Relname})
}

func selectAttenuates(s *pg_query.SelectStmt, tables *[]TableRef) bool {
	if s == nil {
		return true
	}
	if s.Op != pg_query.SetOperation_SETOP_NONE {
		return true
	}
	if len(s.GroupClause) > 0 || s.HavingClause != nil {
		return true
	}
	if len(s.WindowClause) > 0 {
		return true
	}
	if len(s.ValuesLists) > 0 {
		return true
	}
	if s.WithClause != nil {
		return true
	}
	for _, item := range s.FromClause {
		if fromItemAttenuates(item, tables) {
			return true
		}
	}
	return false
}

func fromItemAttenuates(node *pg_query.Node, tables *[]TableRef) bool {
	if node == nil {
		return true
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		addRangeVar(n.RangeVar, tables)
		return false
	case *pg_query.Node_JoinExpr:
		j := n.JoinExpr
		if j.Jointype != pg_query.JoinType_JOIN_INNER {
			return true
		}
		return fromItemAttenuates(j.Larg, tables) || fromItemAttenuates(j.Rarg, tables)
	case *pg_query.Node_RangeSubselect:
		sub := n.RangeSubselect.GetSubquery()
		if sub == nil {
			return true
		}
		sel := sub.GetSelectStmt()
		if sel == nil {
			return true
		}
		return selectAttenuates(sel, tables)
	default:
		// Set-returning functions and anything not positively recognized.
		return true
	}
}
