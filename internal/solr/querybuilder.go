package solr

import (
	"context"
	"errors"
	"strings"

	"github.com/kalambet/solrmcp/internal/sqlparse"
)

// pseudo-fields Solr materializes at query time; they exist in no schema.
var pseudoFields = map[string]bool{
	"score": true,
	"*":     true,
}

// QueryBuilder parses and validates SELECT statements against live cluster
// metadata. It is a pure transform over the resolver and catalog caches; no
// backend query runs until validation has passed.
type QueryBuilder struct {
	resolver *Resolver
	catalog  *FieldCatalog
}

// NewQueryBuilder creates a QueryBuilder over the given resolver and catalog.
func NewQueryBuilder(resolver *Resolver, catalog *FieldCatalog) *QueryBuilder {
	return &QueryBuilder{resolver: resolver, catalog: catalog}
}

// ParseAndValidate parses raw SQL and validates it: exactly one known FROM
// collection, every referenced field present in the catalog, doc-values
// available on sort and range fields, and non-negative LIMIT/OFFSET.
func (qb *QueryBuilder) ParseAndValidate(ctx context.Context, rawSQL string) (*sqlparse.Select, error) {
	sel, err := sqlparse.Parse(rawSQL)
	if err != nil {
		var syn *sqlparse.SyntaxError
		if errors.As(err, &syn) {
			return nil, &ParseError{Query: rawSQL, Err: syn}
		}
		return nil, &ParseError{Query: rawSQL, Err: err}
	}

	collection := sel.From
	ok, err := qb.resolver.Exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ValidationError{Collection: collection, Msg: "collection not found"}
	}

	if sel.Limit != nil && *sel.Limit < 0 {
		return nil, &ValidationError{Collection: collection, Msg: "LIMIT must be non-negative"}
	}
	if sel.Offset != nil && *sel.Offset < 0 {
		return nil, &ValidationError{Collection: collection, Msg: "OFFSET must be non-negative"}
	}

	fields, err := qb.catalog.Fields(ctx, collection)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	for _, name := range sel.Fields {
		if pseudoFields[name] {
			continue
		}
		if _, ok := byName[name]; !ok {
			return nil, &ValidationError{Collection: collection, Field: name, Msg: "unknown field"}
		}
	}
	for _, name := range sel.WhereFields() {
		if _, ok := byName[name]; !ok {
			return nil, &ValidationError{Collection: collection, Field: name, Msg: "unknown field"}
		}
	}

	// Sorting and range filtering need per-document field access.
	for _, item := range sel.OrderBy {
		f, ok := byName[item.Field]
		if !ok && !pseudoFields[item.Field] {
			return nil, &ValidationError{Collection: collection, Field: item.Field, Msg: "unknown field"}
		}
		if ok && !f.DocValues {
			return nil, &ValidationError{Collection: collection, Field: item.Field, Msg: "sorting requires docValues"}
		}
	}
	for _, name := range sel.RangeFields() {
		if f, ok := byName[name]; ok && !f.DocValues {
			return nil, &ValidationError{Collection: collection, Field: name, Msg: "range filtering requires docValues"}
		}
	}

	return sel, nil
}

// idField is the membership-filter target for KNN candidate folding.
const idField = "id"

// Rewrite folds a candidate ID list into a validated statement by mutating
// its WHERE tree: the membership predicate is ANDed with any existing
// predicate, or becomes the whole clause. An empty candidate list injects an
// always-false predicate so the statement is guaranteed to match nothing.
// An existing LIMIT is preserved verbatim; an absent one gets defaultLimit.
// OFFSET passes through for backend pagination.
//
// Rewriting is idempotent: a statement already carrying the membership
// predicate for the same ID set is returned unchanged.
func Rewrite(sel *sqlparse.Select, ids []string, defaultLimit int) *sqlparse.Select {
	if existing := sel.FindIn(idField); existing != nil && sameIDSet(existing, ids) {
		ensureLimit(sel, defaultLimit)
		return sel
	}

	var pred sqlparse.Expr
	if len(ids) == 0 {
		pred = sqlparse.AlwaysFalse{}
	} else {
		in := &sqlparse.InExpr{Field: idField}
		for _, id := range ids {
			in.Values = append(in.Values, sqlparse.StringLit(id))
		}
		pred = in
	}

	if sel.Where == nil {
		sel.Where = pred
	} else {
		sel.Where = &sqlparse.BinaryExpr{
			Op:    "AND",
			Left:  &sqlparse.ParenExpr{Inner: sel.Where},
			Right: pred,
		}
	}

	ensureLimit(sel, defaultLimit)
	return sel
}

func ensureLimit(sel *sqlparse.Select, defaultLimit int) {
	if sel.Limit == nil {
		limit := defaultLimit
		sel.Limit = &limit
	}
}

func sameIDSet(in *sqlparse.InExpr, ids []string) bool {
	if len(in.Values) != len(ids) || len(ids) == 0 {
		return false
	}
	have := make(map[string]bool, len(in.Values))
	for _, v := range in.Values {
		have[strings.TrimSpace(v.Text)] = true
	}
	for _, id := range ids {
		if !have[id] {
			return false
		}
	}
	return true
}
