// Package parser extracts annotated queries from SQL source files.
//
// The grammar is deliberately small. Each query is introduced by a directive
// comment line
//
//	--! query_name : cardinality
//
// followed by one SQL statement terminated by ';'. The statement body is
// opaque to the parser except for quote-aware scanning (a ';' inside a
// string, quoted identifier, dollar-quoted block, or comment does not end
// the statement) and bind-parameter collection. Whether the SQL actually
// compiles is the database's business, not ours.
//
// Statements may name their parameters with ':ident' placeholders, which are
// deduplicated in first-occurrence order and rewritten to '$1'..'$n' before
// the statement is prepared. Native '$n' placeholders are also accepted as-is;
// mixing both styles in one statement is a syntax error. A '::' cast is never
// a bind.
package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pgschema/pgquerier/internal/report"
)

// Cardinality is the declared row-count contract of a query.
type Cardinality string

const (
	CardinalityOne      Cardinality = "one"
	CardinalityMaybeOne Cardinality = "maybe-one"
	CardinalityMany     Cardinality = "many"
	CardinalityExecute  Cardinality = "execute"
)

// ParseCardinality maps a directive keyword to its Cardinality.
func ParseCardinality(s string) (Cardinality, bool) {
	switch Cardinality(s) {
	case CardinalityOne, CardinalityMaybeOne, CardinalityMany, CardinalityExecute:
		return Cardinality(s), true
	}
	return "", false
}

// Pos is a position in an input file. Line and Column are 1-based and count
// runes; Offset is the byte offset.
type Pos struct {
	Offset int
	Line   int
	Column int
}

// Query is one parsed annotated query. SQL carries the statement with named
// binds rewritten to positional placeholders; RawSQL is the verbatim text.
type Query struct {
	Name        string
	Cardinality Cardinality
	SQL         string
	RawSQL      string
	// Params holds the named bind parameters in first-occurrence order.
	// It is empty when the statement uses native $n placeholders.
	Params  []string
	NamePos Pos
	SQLPos  Pos
}

// Module is the parse result for one input file.
type Module struct {
	Path    string
	Queries []*Query
}

// ParseModule parses one annotated SQL file. Every syntax problem is returned
// as its own diagnostic; parsing recovers at the next directive so one broken
// query does not hide the rest of the file.
func ParseModule(path, content string) (*Module, []report.Diagnostic) {
	s := &scanner{src: content, path: path, line: 1, col: 1}
	m := &Module{Path: path}
	var diags []report.Diagnostic
	seen := make(map[string]Pos)

	for {
		s.skipBlank()
		if s.eof() {
			break
		}
		if !s.has("--!") {
			diags = append(diags, s.diag(s.pos(), `expected query directive "--! name : cardinality"`))
			s.skipToNextDirective()
			continue
		}
		q, d := s.parseQuery()
		if d != nil {
			diags = append(diags, *d)
			s.skipToNextDirective()
			continue
		}
		if prev, dup := seen[q.Name]; dup {
			diags = append(diags, s.diag(q.NamePos,
				fmt.Sprintf("duplicate query name %q (first declared at line %d)", q.Name, prev.Line)))
			continue
		}
		seen[q.Name] = q.NamePos
		m.Queries = append(m.Queries, q)
	}
	return m, diags
}

type scanner struct {
	src  string
	path string
	off  int
	line int
	col  int
}

func (s *scanner) eof() bool {
	return s.off >= len(s.src)
}

func (s *scanner) has(prefix string) bool {
	return strings.HasPrefix(s.src[s.off:], prefix)
}

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.off]
}

func (s *scanner) pos() Pos {
	return Pos{Offset: s.off, Line: s.line, Column: s.col}
}

func (s *scanner) next() rune {
	r, size := utf8.DecodeRuneInString(s.src[s.off:])
	s.off += size
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

// skipN advances n bytes of ASCII input.
func (s *scanner) skipN(n int) {
	for i := 0; i < n; i++ {
		s.next()
	}
}

func (s *scanner) diag(pos Pos, msg string) report.Diagnostic {
	return report.Diagnostic{
		Class:   report.ClassSyntax,
		Span:    report.Span{File: s.path, Line: pos.Line, Column: pos.Column},
		Message: msg,
		Snippet: lineAt(s.src, pos.Offset),
		Caret:   pos.Column,
	}
}

// lineAt returns the full source line containing byte offset off.
func lineAt(src string, off int) string {
	if off > len(src) {
		off = len(src)
	}
	start := strings.LastIndexByte(src[:off], '\n') + 1
	end := strings.IndexByte(src[off:], '\n')
	if end < 0 {
		return src[start:]
	}
	return src[start : off+end]
}

// skipBlank consumes whitespace, plain '--' comments, and block comments
// between queries. A '--!' directive is never consumed.
func (s *scanner) skipBlank() {
	for !s.eof() {
		switch {
		case s.peek() == ' ' || s.peek() == '\t' || s.peek() == '\n' || s.peek() == '\r':
			s.next()
		case s.has("--") && !s.has("--!"):
			s.skipLineComment()
		case s.has("/*"):
			s.skipBlockComment()
		default:
			return
		}
	}
}

func (s *scanner) skipLineComment() {
	for !s.eof() && s.peek() != '\n' {
		s.next()
	}
}

// skipBlockComment consumes a (possibly nested) block comment.
func (s *scanner) skipBlockComment() {
	depth := 0
	for !s.eof() {
		switch {
		case s.has("/*"):
			depth++
			s.skipN(2)
		case s.has("*/"):
			depth--
			s.skipN(2)
			if depth == 0 {
				return
			}
		default:
			s.next()
		}
	}
}

// skipToNextDirective advances to the next line starting with '--!', so one
// malformed query does not cascade into errors for the rest of the file.
func (s *scanner) skipToNextDirective() {
	for !s.eof() {
		s.skipLineComment() // rest of the current line
		if !s.eof() {
			s.next() // the newline
		}
		if s.has("--!") {
			return
		}
	}
}

func (s *scanner) skipSpaces() {
	for !s.eof() && (s.peek() == ' ' || s.peek() == '\t') {
		s.next()
	}
}

func isIdentStart(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || b >= '0' && b <= '9' || b == '_'
}

func (s *scanner) ident() string {
	if s.eof() || !isIdentStart(s.peek()) {
		return ""
	}
	start := s.off
	for !s.eof() && isIdentChar(s.peek()) {
		s.next()
	}
	return s.src[start:s.off]
}

// keyword reads a cardinality token: letters and '-'.
func (s *scanner) keyword() string {
	start := s.off
	for !s.eof() && (isIdentStart(s.peek()) || s.peek() == '-') {
		s.next()
	}
	return s.src[start:s.off]
}

func (s *scanner) parseQuery() (*Query, *report.Diagnostic) {
	s.skipN(3) // "--!"
	s.skipSpaces()

	namePos := s.pos()
	name := s.ident()
	if name == "" {
		d := s.diag(namePos, "expected query name after \"--!\"")
		return nil, &d
	}

	s.skipSpaces()
	if s.peek() != ':' {
		d := s.diag(s.pos(), fmt.Sprintf("expected ':' after query name %q", name))
		return nil, &d
	}
	s.next()
	s.skipSpaces()

	kwPos := s.pos()
	kw := s.keyword()
	card, ok := ParseCardinality(kw)
	if !ok {
		d := s.diag(kwPos, fmt.Sprintf("unknown cardinality %q (expected one, maybe-one, many, or execute)", kw))
		return nil, &d
	}

	s.skipSpaces()
	if !s.eof() && s.peek() != '\n' && s.peek() != '\r' {
		d := s.diag(s.pos(), "unexpected characters after cardinality")
		return nil, &d
	}

	s.skipBlank()
	if s.eof() || s.has("--!") {
		d := s.diag(namePos, fmt.Sprintf("query %q has no SQL statement", name))
		return nil, &d
	}

	sqlPos := s.pos()
	raw, binds, hasPositional, terminated := s.scanStatement()
	if !terminated {
		d := s.diag(sqlPos, fmt.Sprintf("unterminated SQL statement for query %q (missing ';')", name))
		return nil, &d
	}
	if len(binds) > 0 && hasPositional {
		d := s.diag(sqlPos, fmt.Sprintf("query %q mixes named (:param) and positional ($n) placeholders", name))
		return nil, &d
	}

	raw = strings.TrimRight(raw, " \t\r\n")
	sql, params := rewriteBinds(raw, binds)
	return &Query{
		Name:        name,
		Cardinality: card,
		SQL:         sql,
		RawSQL:      raw,
		Params:      params,
		NamePos:     namePos,
		SQLPos:      sqlPos,
	}, nil
}

type bindRef struct {
	name  string
	start int // byte range relative to the statement start, including ':'
	end   int
}

// scanStatement consumes one statement up to its terminating ';'. It tracks
// PostgreSQL lexical structure so that quoted text never terminates the
// statement or produces a bind.
func (s *scanner) scanStatement() (raw string, binds []bindRef, hasPositional, terminated bool) {
	start := s.off
	for !s.eof() {
		switch {
		case s.has("--"):
			s.skipLineComment()
		case s.has("/*"):
			s.skipBlockComment()
		case s.has("E'") || s.has("e'"):
			s.skipN(1)
			s.skipEscapeString()
		case s.peek() == '\'':
			s.skipQuoted('\'')
		case s.peek() == '"':
			s.skipQuoted('"')
		case s.has("::"):
			s.skipN(2)
		case s.peek() == ':':
			bindStart := s.off
			s.next()
			if !s.eof() && isIdentStart(s.peek()) {
				name := s.ident()
				binds = append(binds, bindRef{name: name, start: bindStart - start, end: s.off - start})
			}
		case s.peek() == '$':
			if pos := s.dollarTagEnd(); pos > 0 {
				s.skipDollarQuoted(pos)
			} else if s.off+1 < len(s.src) && s.src[s.off+1] >= '0' && s.src[s.off+1] <= '9' {
				hasPositional = true
				s.next()
				for !s.eof() && s.peek() >= '0' && s.peek() <= '9' {
					s.next()
				}
			} else {
				s.next()
			}
		case s.peek() == ';':
			raw = s.src[start:s.off]
			s.next()
			return raw, binds, hasPositional, true
		default:
			s.next()
		}
	}
	return s.src[start:], binds, hasPositional, false
}

// skipQuoted consumes a quote-delimited token where a doubled delimiter is an
// escape ('' inside strings, "" inside identifiers).
func (s *scanner) skipQuoted(delim byte) {
	s.next() // opening delimiter
	for !s.eof() {
		if s.peek() == delim {
			s.next()
			if s.peek() == delim {
				s.next()
				continue
			}
			return
		}
		s.next()
	}
}

// skipEscapeString consumes an E'...' body where both \' and '' escape the
// delimiter. The scanner is positioned on the opening quote.
func (s *scanner) skipEscapeString() {
	s.next() // opening quote
	for !s.eof() {
		switch {
		case s.has(`\`):
			s.skipN(1)
			if !s.eof() {
				s.next()
			}
		case s.peek() == '\'':
			s.next()
			if s.peek() == '\'' {
				s.next()
				continue
			}
			return
		default:
			s.next()
		}
	}
}

// dollarTagEnd reports whether the scanner sits on a dollar-quote opener
// ($tag$ or $$) and returns the byte length of the opener, or 0 if the '$'
// is not a dollar quote (e.g. a $1 placeholder).
func (s *scanner) dollarTagEnd() int {
	i := s.off + 1
	if i < len(s.src) && s.src[i] == '$' {
		return 2 // $$
	}
	if i < len(s.src) && (isIdentStart(s.src[i]) || s.src[i] == '_') {
		for i < len(s.src) && isIdentChar(s.src[i]) {
			i++
		}
		if i < len(s.src) && s.src[i] == '$' {
			return i + 1 - s.off
		}
	}
	return 0
}

// skipDollarQuoted consumes a $tag$...$tag$ block given the opener length.
// An unterminated block consumes the rest of the input, which then surfaces
// as an unterminated-statement error.
func (s *scanner) skipDollarQuoted(tagLen int) {
	tag := s.src[s.off : s.off+tagLen]
	s.skipN(tagLen)
	idx := strings.Index(s.src[s.off:], tag)
	if idx < 0 {
		s.skipN(len(s.src) - s.off)
		return
	}
	s.skipN(idx + len(tag))
}

// rewriteBinds replaces each ':name' occurrence with its positional
// placeholder, numbering names by first occurrence.
func rewriteBinds(raw string, binds []bindRef) (string, []string) {
	if len(binds) == 0 {
		return raw, nil
	}
	index := make(map[string]int)
	var names []string
	for _, b := range binds {
		if _, ok := index[b.name]; !ok {
			index[b.name] = len(names) + 1
			names = append(names, b.name)
		}
	}
	var sb strings.Builder
	last := 0
	for _, b := range binds {
		if b.start < last || b.end > len(raw) {
			continue // bind recorded past the statement end; raw was trimmed
		}
		sb.WriteString(raw[last:b.start])
		fmt.Fprintf(&sb, "$%d", index[b.name])
		last = b.end
	}
	sb.WriteString(raw[last:])
	return sb.String(), names
}
