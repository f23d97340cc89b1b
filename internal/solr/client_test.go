package solr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/solrmcp/internal/sqlparse"
)

// fakeSolr is an httptest-backed Solr standin serving admin, schema, select,
// and sql endpoints for a single collection.
type fakeSolr struct {
	srv *httptest.Server

	collections []string
	fields      []map[string]any
	fieldTypes  []map[string]any

	// selectDocs is returned by /select (KNN path); sqlDocs by /sql.
	selectDocs     []map[string]any
	selectNumFound int64
	sqlDocs        func(stmt string) []map[string]any

	lastSelectBody map[string]any
	lastStmt       string
	sqlCalls       int
	schemaCalls    int
	listCalls      int
}

func newFakeSolr(t *testing.T) *fakeSolr {
	t.Helper()
	f := &fakeSolr{
		collections: []string{"docs"},
		fields: []map[string]any{
			{"name": "id", "type": "string", "indexed": true, "stored": true, "docValues": true},
			{"name": "title", "type": "text_general", "indexed": true, "stored": true, "docValues": false},
			{"name": "content", "type": "text_general", "indexed": true, "stored": true, "docValues": false},
			{"name": "views", "type": "pint", "indexed": true, "stored": true, "docValues": true},
			{"name": "embedding", "type": "knn_vector_768", "indexed": true, "stored": false},
		},
		fieldTypes: []map[string]any{
			{"name": "string", "class": "solr.StrField"},
			{"name": "text_general", "class": "solr.TextField"},
			{"name": "pint", "class": "solr.IntPointField"},
			{"name": "knn_vector_768", "class": "solr.DenseVectorField"},
		},
		sqlDocs: func(string) []map[string]any { return nil },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/collections", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls++
		json.NewEncoder(w).Encode(map[string]any{"collections": f.collections})
	})
	mux.HandleFunc("/docs/schema/fields", func(w http.ResponseWriter, r *http.Request) {
		f.schemaCalls++
		json.NewEncoder(w).Encode(map[string]any{"fields": f.fields})
	})
	mux.HandleFunc("/docs/schema/fieldtypes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"fieldTypes": f.fieldTypes})
	})
	mux.HandleFunc("/docs/select", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.lastSelectBody = body
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{"numFound": f.selectNumFound, "docs": f.selectDocs},
		})
	})
	mux.HandleFunc("/docs/sql", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.sqlCalls++
		f.lastStmt = r.FormValue("stmt")
		docs := f.sqlDocs(f.lastStmt)
		docs = append(docs, map[string]any{"EOF": true, "RESPONSE_TIME": 3})
		json.NewEncoder(w).Encode(map[string]any{
			"result-set": map[string]any{"docs": docs},
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSolr) client(embedder Embedder) *Client {
	return NewClient(Options{BaseURL: f.srv.URL}, embedder)
}

// fakeEmbedder returns a fixed vector, or an error when set.
type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func rowDocs(n int) []map[string]any {
	docs := make([]map[string]any, n)
	for i := range docs {
		docs[i] = map[string]any{"id": fmt.Sprintf("doc%d", i+1), "title": fmt.Sprintf("t%d", i+1)}
	}
	return docs
}

func TestSelect_RowsAndMarker(t *testing.T) {
	f := newFakeSolr(t)
	f.sqlDocs = func(string) []map[string]any { return rowDocs(5) }

	c := f.client(nil)
	rs, err := c.Select(context.Background(), "SELECT id, title FROM docs LIMIT 5")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if got := len(rs.Rows()); got != 5 {
		t.Errorf("rows = %d, want 5", got)
	}
	if rs.NumFound < 5 {
		t.Errorf("numFound = %d, want >= 5", rs.NumFound)
	}
	last := rs.Docs[len(rs.Docs)-1]
	if last["EOF"] != true {
		t.Errorf("last doc = %v, want terminal marker", last)
	}
}

func TestSelect_UnknownCollection(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	_, err := c.Select(context.Background(), "SELECT id FROM missing")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if f.sqlCalls != 0 {
		t.Errorf("sql endpoint hit %d times, want 0", f.sqlCalls)
	}
}

func TestSelect_UnknownField(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	_, err := c.Select(context.Background(), "SELECT id, bogus FROM docs")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Field != "bogus" {
		t.Errorf("field = %q, want bogus", verr.Field)
	}
}

func TestSelect_DocValuesRequired(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	// title has no docValues: sorting and range filtering must be rejected
	// before any backend call.
	for _, sql := range []string{
		"SELECT id FROM docs ORDER BY title",
		"SELECT id FROM docs WHERE title > 'a'",
	} {
		_, err := c.Select(context.Background(), sql)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%q: error = %v, want ValidationError", sql, err)
		}
	}
	if f.sqlCalls != 0 {
		t.Errorf("sql endpoint hit %d times, want 0", f.sqlCalls)
	}
}

func TestSelect_NegativeLimit(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	_, err := c.Select(context.Background(), "SELECT id FROM docs LIMIT -3")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestSelect_ParseError(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	_, err := c.Select(context.Background(), "DELETE FROM docs")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
}

func TestVectorSelect_FoldsCandidates(t *testing.T) {
	f := newFakeSolr(t)
	f.selectDocs = []map[string]any{
		{"id": "doc2", "score": 0.9},
		{"id": "doc7", "score": 0.8},
	}
	f.selectNumFound = 2
	f.sqlDocs = func(string) []map[string]any { return rowDocs(2) }

	c := f.client(nil)
	rs, err := c.VectorSelect(context.Background(), "SELECT id, title FROM docs LIMIT 5", []float32{0.1, 0.2}, "")
	if err != nil {
		t.Fatalf("VectorSelect: %v", err)
	}

	if !strings.Contains(f.lastStmt, "id IN ('doc2', 'doc7')") {
		t.Errorf("stmt = %q, want id membership filter", f.lastStmt)
	}
	if !strings.Contains(f.lastStmt, "LIMIT 5") {
		t.Errorf("stmt = %q, want original LIMIT preserved", f.lastStmt)
	}
	// KNN query targets the auto-detected vector field with topK=limit+offset.
	if q, _ := f.lastSelectBody["query"].(string); !strings.Contains(q, "{!knn f=embedding topK=5}") {
		t.Errorf("knn query = %q, want embedding field, topK 5", q)
	}
	if len(rs.Rows()) != 2 {
		t.Errorf("rows = %d, want 2", len(rs.Rows()))
	}
}

func TestVectorSelect_TopKIncludesOffset(t *testing.T) {
	f := newFakeSolr(t)
	f.sqlDocs = func(string) []map[string]any { return nil }

	c := f.client(nil)
	_, err := c.VectorSelect(context.Background(), "SELECT id FROM docs LIMIT 5 OFFSET 10", []float32{0.5}, "")
	if err != nil {
		t.Fatalf("VectorSelect: %v", err)
	}
	if q, _ := f.lastSelectBody["query"].(string); !strings.Contains(q, "topK=15") {
		t.Errorf("knn query = %q, want topK=15 (limit+offset)", q)
	}
}

func TestVectorSelect_PaginationWindow(t *testing.T) {
	f := newFakeSolr(t)

	// 15 documents in fixed similarity rank order; both statements below
	// request topK=15, so the KNN fake serves the same ranked candidates.
	ranked := make([]string, 15)
	docs := make([]map[string]any, 15)
	for i := range ranked {
		ranked[i] = fmt.Sprintf("doc%02d", i+1)
		docs[i] = map[string]any{"id": ranked[i], "score": 1.0 - float64(i)/100}
	}
	f.selectDocs = docs
	f.selectNumFound = int64(len(docs))

	// The SQL fake behaves like a stable backend: membership filter applied
	// over the ranked order, then OFFSET and LIMIT.
	f.sqlDocs = func(stmt string) []map[string]any {
		sel, err := sqlparse.Parse(stmt)
		if err != nil {
			t.Errorf("backend got unparseable stmt %q: %v", stmt, err)
			return nil
		}
		in := sel.FindIn("id")
		if in == nil {
			t.Errorf("stmt %q carries no membership filter", stmt)
			return nil
		}
		member := make(map[string]bool, len(in.Values))
		for _, v := range in.Values {
			member[v.Text] = true
		}
		var matched []map[string]any
		for _, id := range ranked {
			if member[id] {
				matched = append(matched, map[string]any{"id": id})
			}
		}
		off := sel.EffectiveOffset()
		if off > len(matched) {
			return nil
		}
		matched = matched[off:]
		if lim := sel.EffectiveLimit(); lim < len(matched) {
			matched = matched[:lim]
		}
		return matched
	}

	c := f.client(nil)
	vec := []float32{0.3, 0.7}

	window, err := c.VectorSelect(context.Background(), "SELECT id FROM docs LIMIT 5 OFFSET 10", vec, "")
	if err != nil {
		t.Fatalf("VectorSelect (window): %v", err)
	}
	full, err := c.VectorSelect(context.Background(), "SELECT id FROM docs LIMIT 15", vec, "")
	if err != nil {
		t.Fatalf("VectorSelect (full): %v", err)
	}

	// OFFSET 10 LIMIT 5 must equal the full LIMIT 15 result minus its first
	// 10 rows.
	fullRows := full.Rows()
	if len(fullRows) != 15 {
		t.Fatalf("full rows = %d, want 15", len(fullRows))
	}
	want := fullRows[10:]
	got := window.Rows()
	if len(got) != len(want) {
		t.Fatalf("window rows = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i]["id"] != want[i]["id"] {
			t.Errorf("window row %d = %v, want %v", i, got[i]["id"], want[i]["id"])
		}
	}
	// And the window must hold exactly ranks 10-14 of the candidate order.
	for i, id := range ranked[10:] {
		if got[i]["id"] != id {
			t.Errorf("window row %d = %v, want rank %d (%s)", i, got[i]["id"], 10+i, id)
		}
	}
	if window.Start != 10 {
		t.Errorf("window start = %d, want 10", window.Start)
	}
}

func TestVectorSelect_EmptyCandidates(t *testing.T) {
	f := newFakeSolr(t)
	// KNN finds nothing; the rewritten statement must match nothing.
	f.sqlDocs = func(stmt string) []map[string]any {
		if strings.Contains(stmt, "1 = 0") {
			return nil
		}
		t.Errorf("stmt = %q, want always-false predicate", stmt)
		return rowDocs(3)
	}

	c := f.client(nil)
	rs, err := c.VectorSelect(context.Background(), "SELECT id FROM docs", []float32{0.5}, "")
	if err != nil {
		t.Fatalf("VectorSelect: %v", err)
	}
	if rs.NumFound != 0 {
		t.Errorf("numFound = %d, want 0", rs.NumFound)
	}
	if len(rs.Rows()) != 0 {
		t.Errorf("rows = %d, want 0", len(rs.Rows()))
	}
}

func TestVectorSelect_ExplicitFieldNotVector(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	_, err := c.VectorSelect(context.Background(), "SELECT id FROM docs", []float32{0.5}, "title")
	var vferr *VectorFieldError
	if !errors.As(err, &vferr) {
		t.Fatalf("error = %v, want VectorFieldError", err)
	}
}

func TestSemanticSelect_NoVectorField(t *testing.T) {
	f := newFakeSolr(t)
	// Strip the vector field: semantic search must fail, not fall back to
	// plain text search.
	f.fields = f.fields[:4]

	emb := &fakeEmbedder{vec: []float32{0.1}}
	c := f.client(emb)

	_, err := c.SemanticSelect(context.Background(), "SELECT id FROM docs", "example", "")
	var vferr *VectorFieldError
	if !errors.As(err, &vferr) {
		t.Fatalf("error = %v, want VectorFieldError", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0 (field validation precedes embedding)", emb.calls)
	}
	if f.sqlCalls != 0 {
		t.Errorf("sql endpoint hit %d times, want 0", f.sqlCalls)
	}
}

func TestSemanticSelect_ProviderErrorStopsPipeline(t *testing.T) {
	f := newFakeSolr(t)
	emb := &fakeEmbedder{err: errors.New("provider exploded")}
	c := f.client(emb)

	_, err := c.SemanticSelect(context.Background(), "SELECT id FROM docs", "example", "")
	if err == nil || !strings.Contains(err.Error(), "provider exploded") {
		t.Fatalf("error = %v, want provider failure", err)
	}
	if f.sqlCalls != 0 {
		t.Errorf("sql endpoint hit %d times, want 0 after provider failure", f.sqlCalls)
	}
}

func TestSemanticSelect_HappyPath(t *testing.T) {
	f := newFakeSolr(t)
	f.selectDocs = []map[string]any{{"id": "doc1", "score": 0.7}}
	f.selectNumFound = 1
	f.sqlDocs = func(string) []map[string]any { return rowDocs(1) }

	emb := &fakeEmbedder{vec: []float32{0.25, -0.5}}
	c := f.client(emb)

	rs, err := c.SemanticSelect(context.Background(), "SELECT id, title FROM docs", "example text", "")
	if err != nil {
		t.Fatalf("SemanticSelect: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want exactly 1 per query", emb.calls)
	}
	if q, _ := f.lastSelectBody["query"].(string); !strings.Contains(q, "[0.25,-0.5]") {
		t.Errorf("knn query = %q, want rendered vector literal", q)
	}
	if !strings.Contains(f.lastStmt, "id IN ('doc1')") {
		t.Errorf("stmt = %q, want candidate filter", f.lastStmt)
	}
	if len(rs.Rows()) != 1 {
		t.Errorf("rows = %d, want 1", len(rs.Rows()))
	}
}

func TestSemanticSearch_ReturnsHitsDirectly(t *testing.T) {
	f := newFakeSolr(t)
	f.selectDocs = []map[string]any{
		{"id": "doc3", "title": []any{"third"}, "score": 0.91},
		{"id": "doc8", "title": []any{"eighth"}, "score": 0.84},
	}
	f.selectNumFound = 42

	emb := &fakeEmbedder{vec: []float32{0.5, -0.25}}
	c := f.client(emb)

	rs, err := c.SemanticSearch(context.Background(), "docs", "example text", "", 2, 0)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}

	// Pure-vector path: the hits are the result, no SQL statement runs.
	if f.sqlCalls != 0 {
		t.Errorf("sql endpoint hit %d times, want 0", f.sqlCalls)
	}
	if q, _ := f.lastSelectBody["query"].(string); !strings.Contains(q, "{!knn f=embedding topK=2}") {
		t.Errorf("knn query = %q, want embedding field, topK 2", q)
	}
	if fl, _ := f.lastSelectBody["fields"].(string); fl != "*,score" {
		t.Errorf("fields = %q, want full-document projection", fl)
	}

	rows := rs.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["id"] != "doc3" || rows[1]["id"] != "doc8" {
		t.Errorf("rows = %v, want rank order doc3, doc8", rows)
	}
	// Single-element stored arrays flatten like every other path.
	if rows[0]["title"] != "third" {
		t.Errorf("title = %v, want flattened scalar", rows[0]["title"])
	}
	// The backend total survives; it is not the returned row count.
	if rs.NumFound != 42 {
		t.Errorf("numFound = %d, want backend-reported 42", rs.NumFound)
	}
	last := rs.Docs[len(rs.Docs)-1]
	if last["EOF"] != true {
		t.Errorf("last doc = %v, want terminal marker", last)
	}
}

func TestSemanticSearch_OffsetWidensTopK(t *testing.T) {
	f := newFakeSolr(t)
	emb := &fakeEmbedder{vec: []float32{0.1}}
	c := f.client(emb)

	if _, err := c.SemanticSearch(context.Background(), "docs", "example", "", 5, 10); err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	q, _ := f.lastSelectBody["query"].(string)
	if !strings.Contains(q, "topK=15") {
		t.Errorf("knn query = %q, want topK=15 (limit+offset)", q)
	}
	if off, _ := f.lastSelectBody["offset"].(float64); off != 10 {
		t.Errorf("offset = %v, want 10", f.lastSelectBody["offset"])
	}
}

func TestSemanticSearch_UnknownCollection(t *testing.T) {
	f := newFakeSolr(t)
	emb := &fakeEmbedder{vec: []float32{0.1}}
	c := f.client(emb)

	_, err := c.SemanticSearch(context.Background(), "missing", "example", "", 5, 0)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0", emb.calls)
	}
}

func TestListCollectionsAndFields(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	cols, err := c.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(cols) != 1 || cols[0] != "docs" {
		t.Errorf("collections = %v, want [docs]", cols)
	}

	fields, err := c.ListFields(context.Background(), "docs")
	if err != nil {
		t.Fatalf("ListFields: %v", err)
	}
	if len(fields) != 5 {
		t.Fatalf("fields = %d, want 5", len(fields))
	}
	var embedding *Field
	for i := range fields {
		if fields[i].Name == "embedding" {
			embedding = &fields[i]
		}
	}
	if embedding == nil || !embedding.Vector {
		t.Errorf("embedding field = %+v, want vector-typed", embedding)
	}
}

func TestFieldCatalog_CachedAcrossQueries(t *testing.T) {
	f := newFakeSolr(t)
	f.sqlDocs = func(string) []map[string]any { return rowDocs(1) }
	c := f.client(nil)

	for i := 0; i < 3; i++ {
		if _, err := c.Select(context.Background(), "SELECT id FROM docs"); err != nil {
			t.Fatalf("Select #%d: %v", i, err)
		}
	}
	if f.schemaCalls != 1 {
		t.Errorf("schema fetched %d times, want 1 (cached)", f.schemaCalls)
	}
}

func TestFieldCatalog_InvalidateForcesRefetch(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	for i := 0; i < 2; i++ {
		if _, err := c.ListFields(context.Background(), "docs"); err != nil {
			t.Fatalf("ListFields #%d: %v", i, err)
		}
	}
	if f.schemaCalls != 1 {
		t.Fatalf("schema fetched %d times, want 1 before invalidation", f.schemaCalls)
	}

	// Schema changes behind the cache; invalidation must force a re-fetch
	// that observes the new field.
	f.fields = append(f.fields, map[string]any{
		"name": "summary", "type": "text_general", "indexed": true, "stored": true, "docValues": false,
	})
	c.catalog.Invalidate("docs")

	fields, err := c.ListFields(context.Background(), "docs")
	if err != nil {
		t.Fatalf("ListFields after invalidation: %v", err)
	}
	if f.schemaCalls != 2 {
		t.Errorf("schema fetched %d times, want 2 after invalidation", f.schemaCalls)
	}
	found := false
	for _, fd := range fields {
		if fd.Name == "summary" {
			found = true
		}
	}
	if !found {
		t.Errorf("fields = %v, want re-fetched catalog with summary", fields)
	}
}

func TestContextCanceledBeforeExecution(t *testing.T) {
	f := newFakeSolr(t)
	c := f.client(nil)

	// Warm metadata caches first.
	if _, err := c.ListFields(context.Background(), "docs"); err != nil {
		t.Fatalf("ListFields: %v", err)
	}
	if _, err := c.ListCollections(context.Background()); err != nil {
		t.Fatalf("ListCollections: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Select(ctx, "SELECT id FROM docs")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if f.sqlCalls != 0 {
		t.Errorf("sql endpoint hit %d times, want 0 after cancellation", f.sqlCalls)
	}
}
