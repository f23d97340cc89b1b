package sqlparse

import (
	"strconv"
	"strings"
)

// Parse turns a SELECT statement into its structured form. Keywords are
// case-insensitive; surrounding whitespace is ignored. Exactly one FROM
// target is accepted: a comma after the collection name (a join list) is a
// syntax error, as is any trailing input after the final clause.
func Parse(input string) (*Select, error) {
	p := &parser{lex: &lexer{input: strings.TrimSpace(input)}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	sel, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected("end of statement")
	}
	return sel, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) unexpected(want string) *SyntaxError {
	got := p.tok.text
	if p.tok.kind == tokEOF {
		got = "end of input"
	}
	return &SyntaxError{Pos: p.tok.pos, Fragment: got, Msg: "expected " + want}
}

// keyword reports whether the current token is the given keyword
// (case-insensitive identifier match).
func (p *parser) keyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.keyword(kw) {
		return p.unexpected(kw)
	}
	return p.advance()
}

var reservedWords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"in": true, "like": true, "between": true, "order": true, "by": true,
	"limit": true, "offset": true, "asc": true, "desc": true, "not": true,
	"join": true, "group": true, "having": true, "union": true,
}

func (p *parser) expectName(what string) (string, error) {
	if p.tok.kind != tokIdent || reservedWords[strings.ToLower(p.tok.text)] {
		return "", p.unexpected(what)
	}
	name := p.tok.text
	return name, p.advance()
}

func (p *parser) parseSelect() (*Select, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	sel := &Select{}

	// Projection list: * or a comma-separated field list.
	if p.tok.kind == tokStar {
		sel.Fields = append(sel.Fields, "*")
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for {
			name, err := p.expectName("field name")
			if err != nil {
				return nil, err
			}
			sel.Fields = append(sel.Fields, name)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.expectName("collection name")
	if err != nil {
		return nil, err
	}
	sel.From = from
	if p.tok.kind == tokComma {
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: "multiple FROM targets are not supported"}
	}
	if p.keyword("JOIN") {
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: "JOIN is not supported"}
	}

	if p.keyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		sel.Where = where
	}

	if p.keyword("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			name, err := p.expectName("sort field")
			if err != nil {
				return nil, err
			}
			item := OrderItem{Field: name}
			if p.keyword("DESC") {
				item.Desc = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			} else if p.keyword("ASC") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			sel.OrderBy = append(sel.OrderBy, item)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.keyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.expectInt("LIMIT value")
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}

	if p.keyword("OFFSET") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.expectInt("OFFSET value")
		if err != nil {
			return nil, err
		}
		sel.Offset = &n
	}

	return sel, nil
}

// expectInt consumes an integer token. Negative values parse here and are
// rejected later by semantic validation, so the caller can classify them
// separately from syntax failures.
func (p *parser) expectInt(what string) (int, error) {
	if p.tok.kind != tokNumber {
		return 0, p.unexpected(what)
	}
	n, err := strconv.Atoi(p.tok.text)
	if err != nil {
		return 0, &SyntaxError{Pos: p.tok.pos, Fragment: p.tok.text, Msg: what + " must be an integer"}
	}
	return n, p.advance()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePredicate() (Expr, error) {
	if p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.unexpected(")")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ParenExpr{Inner: inner}, nil
	}

	// 1 = 0 style constant comparisons appear in rewritten statements.
	if p.tok.kind == tokNumber {
		lhs := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokOp || p.tok.text != "=" {
			return nil, p.unexpected("=")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokNumber {
			return nil, p.unexpected("number")
		}
		rhs := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if lhs != rhs {
			return AlwaysFalse{}, nil
		}
		return &Comparison{Field: lhs, Op: "=", Value: NumberLit(rhs)}, nil
	}

	field, err := p.expectName("field name")
	if err != nil {
		return nil, err
	}

	switch {
	case p.tok.kind == tokOp:
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Comparison{Field: field, Op: op, Value: val}, nil

	case p.keyword("IN"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokLParen {
			return nil, p.unexpected("(")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		in := &InExpr{Field: field}
		for {
			val, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			in.Values = append(in.Values, val)
			if p.tok.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if p.tok.kind != tokRParen {
			return nil, p.unexpected(")")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return in, nil

	case p.keyword("LIKE"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &LikeExpr{Field: field, Pattern: val}, nil

	case p.keyword("BETWEEN"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		low, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Field: field, Low: low, High: high}, nil

	default:
		return nil, p.unexpected("comparison operator, IN, LIKE, or BETWEEN")
	}
}

func (p *parser) parseLiteral() (Literal, error) {
	switch p.tok.kind {
	case tokNumber:
		lit := NumberLit(p.tok.text)
		return lit, p.advance()
	case tokString:
		lit := StringLit(p.tok.text)
		return lit, p.advance()
	case tokIdent:
		// Bare identifiers in value position are treated as string values;
		// Solr document ids are commonly unquoted in hand-written queries.
		if reservedWords[strings.ToLower(p.tok.text)] {
			return Literal{}, p.unexpected("literal value")
		}
		lit := StringLit(p.tok.text)
		return lit, p.advance()
	default:
		return Literal{}, p.unexpected("literal value")
	}
}
