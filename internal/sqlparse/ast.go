// Package sqlparse implements a lexer, parser, and renderer for the SQL
// SELECT subset understood by Solr's SQL interface: a projection list, a
// single FROM collection, WHERE with AND/OR/comparison/IN/LIKE/BETWEEN
// predicates, ORDER BY, LIMIT, and OFFSET.
//
// The package is pure syntax: it knows nothing about collections or schemas.
// Semantic validation lives in internal/solr.
package sqlparse

import (
	"strconv"
	"strings"
)

// LitKind distinguishes literal value categories for rendering.
type LitKind int

const (
	LitNumber LitKind = iota
	LitString
)

// Literal is a scalar value appearing in a predicate.
type Literal struct {
	Kind LitKind
	Text string // unquoted text for strings, raw digits for numbers
}

func (l Literal) render(b *strings.Builder) {
	if l.Kind == LitString {
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(l.Text, "'", "''"))
		b.WriteByte('\'')
		return
	}
	b.WriteString(l.Text)
}

// StringLit builds a string literal.
func StringLit(s string) Literal { return Literal{Kind: LitString, Text: s} }

// NumberLit builds a numeric literal.
func NumberLit(s string) Literal { return Literal{Kind: LitNumber, Text: s} }

// Expr is a node in a WHERE-clause tree.
type Expr interface {
	render(b *strings.Builder)
}

// BinaryExpr joins two predicates with AND or OR.
type BinaryExpr struct {
	Op    string // "AND" or "OR"
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) render(b *strings.Builder) {
	e.Left.render(b)
	b.WriteByte(' ')
	b.WriteString(e.Op)
	b.WriteByte(' ')
	e.Right.render(b)
}

// Comparison is a <field> <op> <literal> predicate.
// Op is one of =, !=, <>, <, <=, >, >=.
type Comparison struct {
	Field string
	Op    string
	Value Literal
}

func (e *Comparison) render(b *strings.Builder) {
	b.WriteString(e.Field)
	b.WriteByte(' ')
	b.WriteString(e.Op)
	b.WriteByte(' ')
	e.Value.render(b)
}

// IsRange reports whether the comparison requires ordered field access.
func (e *Comparison) IsRange() bool {
	switch e.Op {
	case "<", "<=", ">", ">=":
		return true
	}
	return false
}

// InExpr is a <field> IN (v1, v2, ...) membership predicate.
type InExpr struct {
	Field  string
	Values []Literal
}

func (e *InExpr) render(b *strings.Builder) {
	b.WriteString(e.Field)
	b.WriteString(" IN (")
	for i, v := range e.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		v.render(b)
	}
	b.WriteByte(')')
}

// LikeExpr is a <field> LIKE <pattern> predicate.
type LikeExpr struct {
	Field   string
	Pattern Literal
}

func (e *LikeExpr) render(b *strings.Builder) {
	b.WriteString(e.Field)
	b.WriteString(" LIKE ")
	e.Pattern.render(b)
}

// BetweenExpr is a <field> BETWEEN <low> AND <high> range predicate.
type BetweenExpr struct {
	Field string
	Low   Literal
	High  Literal
}

func (e *BetweenExpr) render(b *strings.Builder) {
	b.WriteString(e.Field)
	b.WriteString(" BETWEEN ")
	e.Low.render(b)
	b.WriteString(" AND ")
	e.High.render(b)
}

// ParenExpr preserves explicit grouping from the source text.
type ParenExpr struct {
	Inner Expr
}

func (e *ParenExpr) render(b *strings.Builder) {
	b.WriteByte('(')
	e.Inner.render(b)
	b.WriteByte(')')
}

// AlwaysFalse is a predicate guaranteed to match no rows. The rewriter
// injects it when a vector search produced no candidates, so the statement
// cannot fall through to unfiltered results.
type AlwaysFalse struct{}

func (AlwaysFalse) render(b *strings.Builder) { b.WriteString("1 = 0") }

// OrderItem is one ORDER BY term.
type OrderItem struct {
	Field string
	Desc  bool
}

// Select is the parsed form of a SELECT statement. Limit and Offset are nil
// when the clause is absent; negative values parse successfully and are
// rejected by semantic validation.
type Select struct {
	Fields  []string // "*" appears as a literal star entry
	From    string
	Where   Expr // nil when absent
	OrderBy []OrderItem
	Limit   *int
	Offset  *int
}

// DefaultLimit applies when a statement carries no LIMIT clause.
const DefaultLimit = 10

// EffectiveLimit returns the LIMIT value, or DefaultLimit when absent.
func (s *Select) EffectiveLimit() int {
	if s.Limit == nil {
		return DefaultLimit
	}
	return *s.Limit
}

// EffectiveOffset returns the OFFSET value, or 0 when absent.
func (s *Select) EffectiveOffset() int {
	if s.Offset == nil {
		return 0
	}
	return *s.Offset
}

// Render serializes the statement back to SQL text. The clause order is
// canonical (WHERE, ORDER BY, LIMIT, OFFSET), so a WHERE mutation can never
// land after a trailing LIMIT.
func (s *Select) Render() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(s.Fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.From)
	if s.Where != nil {
		b.WriteString(" WHERE ")
		s.Where.render(&b)
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Field)
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if s.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*s.Limit))
	}
	if s.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*s.Offset))
	}
	return b.String()
}

// WhereFields returns every field referenced in the WHERE tree.
func (s *Select) WhereFields() []string {
	var out []string
	walkExpr(s.Where, func(e Expr) {
		switch p := e.(type) {
		case *Comparison:
			out = append(out, p.Field)
		case *InExpr:
			out = append(out, p.Field)
		case *LikeExpr:
			out = append(out, p.Field)
		case *BetweenExpr:
			out = append(out, p.Field)
		}
	})
	return out
}

// RangeFields returns fields used in range predicates (<, <=, >, >=,
// BETWEEN), which require doc-value access on the backend.
func (s *Select) RangeFields() []string {
	var out []string
	walkExpr(s.Where, func(e Expr) {
		switch p := e.(type) {
		case *Comparison:
			if p.IsRange() {
				out = append(out, p.Field)
			}
		case *BetweenExpr:
			out = append(out, p.Field)
		}
	})
	return out
}

func walkExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *BinaryExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *ParenExpr:
		walkExpr(n.Inner, fn)
	}
}

// FindIn returns the first IN predicate over the given field, or nil.
func (s *Select) FindIn(field string) *InExpr {
	var found *InExpr
	walkExpr(s.Where, func(e Expr) {
		if found != nil {
			return
		}
		if in, ok := e.(*InExpr); ok && strings.EqualFold(in.Field, field) {
			found = in
		}
	})
	return found
}
