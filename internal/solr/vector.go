package solr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Embedder converts free text into a query embedding. The Ollama client
// satisfies this through a thin adapter; tests inject fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Candidate is one KNN hit: a document identifier with its similarity score.
type Candidate struct {
	ID    string
	Score float64
}

// CandidateSet is an ordered KNN result, bounded by the requested top-K and
// kept in backend-assigned rank order. Consumed once by the query rewriter.
type CandidateSet struct {
	Candidates []Candidate
}

// IDs returns the candidate document identifiers in rank order.
func (cs *CandidateSet) IDs() []string {
	ids := make([]string, len(cs.Candidates))
	for i, c := range cs.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// VectorSearcher coordinates vector similarity search: resolving the target
// vector field, obtaining a query embedding, and running the KNN query.
type VectorSearcher struct {
	executor *Executor
	catalog  *FieldCatalog
	embedder Embedder
}

// NewVectorSearcher wires a searcher over the given executor, catalog, and
// embedding provider.
func NewVectorSearcher(executor *Executor, catalog *FieldCatalog, embedder Embedder) *VectorSearcher {
	return &VectorSearcher{executor: executor, catalog: catalog, embedder: embedder}
}

// ResolveField validates an explicit vector field or auto-detects the first
// vector-typed field of the collection. Validation runs before any
// embedding call, so a bad field never costs a provider round trip.
func (v *VectorSearcher) ResolveField(ctx context.Context, collection, explicit string) (Field, error) {
	if explicit != "" {
		f, ok, err := v.catalog.FieldByName(ctx, collection, explicit)
		if err != nil {
			return Field{}, err
		}
		if !ok {
			return Field{}, &VectorFieldError{Collection: collection, Field: explicit, Msg: "field not found"}
		}
		if !f.Vector {
			return Field{}, &VectorFieldError{Collection: collection, Field: explicit, Msg: "not a vector field"}
		}
		return f, nil
	}

	fields, err := v.catalog.Fields(ctx, collection)
	if err != nil {
		return Field{}, err
	}
	for _, f := range fields {
		if f.Vector {
			return f, nil
		}
	}
	return Field{}, &VectorFieldError{Collection: collection, Msg: "no vector field defined"}
}

// Embed obtains the query embedding for free text via the provider.
func (v *VectorSearcher) Embed(ctx context.Context, text string) ([]float32, error) {
	return v.embedder.Embed(ctx, text)
}

// Search runs a KNN query for the top-K nearest documents and returns them
// in backend rank order. Ties break however the backend breaks them; no
// re-sorting happens here, so identical inputs against identical backend
// state yield identical ordered results.
func (v *VectorSearcher) Search(ctx context.Context, collection, field string, vector []float32, topK int) (*CandidateSet, error) {
	query := fmt.Sprintf("{!knn f=%s topK=%d}%s", field, topK, renderVector(vector))
	resp, err := v.executor.Select(ctx, collection, SelectRequest{
		Query:  query,
		Fields: "id,score",
		Limit:  topK,
	})
	if err != nil {
		return nil, err
	}

	cs := &CandidateSet{Candidates: make([]Candidate, 0, len(resp.Docs))}
	for _, d := range resp.Docs {
		id, _ := d["id"].(string)
		if id == "" {
			continue
		}
		score, _ := d["score"].(float64)
		cs.Candidates = append(cs.Candidates, Candidate{ID: id, Score: score})
	}
	return cs, nil
}

// SearchDocs runs a KNN query and returns the hit documents themselves,
// normalized into a ResultSet with the backend-reported found count. This is
// the pure-vector path: no SQL rewriting, the ranked hits are the result.
// The KNN clause requests limit+offset neighbors so the offset window is
// cut from a fully ranked prefix.
func (v *VectorSearcher) SearchDocs(ctx context.Context, collection, field string, vector []float32, limit, offset int) (*ResultSet, error) {
	topK := limit + offset
	query := fmt.Sprintf("{!knn f=%s topK=%d}%s", field, topK, renderVector(vector))
	resp, err := v.executor.Select(ctx, collection, SelectRequest{
		Query:  query,
		Fields: "*,score",
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	return NormalizeSelect(resp.Docs, resp.NumFound, offset), nil
}

// renderVector formats an embedding as the bracketed literal the {!knn}
// parser expects: [0.1,0.2,...].
func renderVector(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
