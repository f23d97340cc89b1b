package solr

// Document is one result row, field name to value.
type Document map[string]any

// ResultSet is the canonical result shape for every query path. Docs always
// ends with a terminal marker row ({"EOF": true}) so consumers can iterate
// without a separate hasMore flag. NumFound counts data rows only.
type ResultSet struct {
	Docs     []Document `json:"docs"`
	NumFound int64      `json:"numFound"`
	Start    int        `json:"start"`
}

// eofMarker terminates every ResultSet.
func eofMarker() Document { return Document{"EOF": true} }

// controlDoc reports whether a raw SQL-endpoint doc is backend end-signaling
// rather than data. Solr's SQL interface appends {"EOF": true,
// "RESPONSE_TIME": n} by convention; the normalizer strips it and appends
// its own marker.
func controlDoc(d map[string]any) bool {
	_, eof := d["EOF"]
	return eof
}

// normalizeValue collapses single-element sequences to scalars. Solr returns
// some stored fields as one-element arrays depending on schema multiValued
// flags; consumers get a stable scalar either way.
func normalizeValue(v any) any {
	if arr, ok := v.([]any); ok && len(arr) == 1 {
		return arr[0]
	}
	return v
}

func normalizeDoc(raw map[string]any) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = normalizeValue(v)
	}
	return doc
}

// NormalizeSQL shapes raw SQL-endpoint docs into a ResultSet at the given
// start offset. Backend control docs are dropped; all other fields pass
// through untouched apart from single-element flattening.
func NormalizeSQL(raw []map[string]any, start int) *ResultSet {
	rs := &ResultSet{Start: start}
	for _, d := range raw {
		if controlDoc(d) {
			continue
		}
		rs.Docs = append(rs.Docs, normalizeDoc(d))
	}
	rs.NumFound = int64(len(rs.Docs))
	rs.Docs = append(rs.Docs, eofMarker())
	return rs
}

// NormalizeSelect shapes raw select-endpoint docs (document-search hits)
// into a ResultSet, keeping the backend-reported total found count.
func NormalizeSelect(raw []map[string]any, numFound int64, start int) *ResultSet {
	rs := &ResultSet{Start: start, NumFound: numFound}
	for _, d := range raw {
		rs.Docs = append(rs.Docs, normalizeDoc(d))
	}
	rs.Docs = append(rs.Docs, eofMarker())
	return rs
}

// Rows returns the data rows of the ResultSet without the terminal marker.
func (rs *ResultSet) Rows() []Document {
	if n := len(rs.Docs); n > 0 {
		if _, eof := rs.Docs[n-1]["EOF"]; eof {
			return rs.Docs[:n-1]
		}
	}
	return rs.Docs
}
