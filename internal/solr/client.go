// Package solr mediates SQL-like SELECT statements, optionally folded with
// vector similarity search, against a Solr cluster. The query pipeline runs
// in explicit stages: parse/validate, resolve vector candidates, rewrite,
// execute, normalize.
package solr

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalambet/solrmcp/internal/sqlparse"
)

// Options configures a Client. BaseURL and Timeout come from the validated
// application configuration.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// ZKHosts enables coordination-service collection listing when set;
	// otherwise collections resolve via the backend admin API.
	ZKHosts []string
}

// Client ties the pipeline stages into the core operations. All collaborator
// fields are replaceable for tests via the With* options.
type Client struct {
	resolver *Resolver
	catalog  *FieldCatalog
	executor *Executor
	builder  *QueryBuilder
	vector   *VectorSearcher
}

// Option overrides a Client collaborator, primarily for tests.
type Option func(*clientDeps)

type clientDeps struct {
	httpClient *http.Client
	provider   CollectionProvider
}

// WithHTTPClient replaces the transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *clientDeps) { d.httpClient = c }
}

// WithCollectionProvider replaces the collection provider.
func WithCollectionProvider(p CollectionProvider) Option {
	return func(d *clientDeps) { d.provider = p }
}

// NewClient builds a Client for the given cluster and embedding provider.
func NewClient(opts Options, embedder Embedder, extra ...Option) *Client {
	deps := &clientDeps{}
	for _, o := range extra {
		o(deps)
	}

	if deps.httpClient == nil {
		deps.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if deps.provider == nil {
		if len(opts.ZKHosts) > 0 {
			deps.provider = NewZKCollectionProvider(opts.ZKHosts, opts.Timeout)
		} else {
			deps.provider = NewHTTPCollectionProvider(opts.BaseURL, deps.httpClient)
		}
	}

	resolver := NewResolver(deps.provider)
	catalog := NewFieldCatalog(opts.BaseURL, deps.httpClient)
	executor := NewExecutor(opts.BaseURL, deps.httpClient)

	return &Client{
		resolver: resolver,
		catalog:  catalog,
		executor: executor,
		builder:  NewQueryBuilder(resolver, catalog),
		vector:   NewVectorSearcher(executor, catalog, embedder),
	}
}

// ListCollections returns the live logical collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	return c.resolver.List(ctx)
}

// ListFields returns the field descriptors of a collection.
func (c *Client) ListFields(ctx context.Context, collection string) ([]Field, error) {
	return c.catalog.Fields(ctx, collection)
}

// Select executes a plain SQL SELECT: parse, validate, run against the SQL
// endpoint, normalize.
func (c *Client) Select(ctx context.Context, rawSQL string) (*ResultSet, error) {
	sel, err := c.builder.ParseAndValidate(ctx, rawSQL)
	if err != nil {
		return nil, err
	}

	stmt := sel.Render()
	slog.Debug("executing sql", "collection", sel.From, "stmt", stmt)
	docs, err := c.executor.SQL(ctx, sel.From, stmt)
	if err != nil {
		return nil, err
	}
	return NormalizeSQL(docs, sel.EffectiveOffset()), nil
}

// VectorSelect executes a SELECT filtered by similarity to a precomputed
// vector. The KNN search requests limit+offset candidates so pagination over
// the ranked list stays correct; the candidate IDs are folded into the
// statement as a membership filter.
//
// A KNN search with no matches still executes and yields a well-formed empty
// ResultSet; it never falls through to unfiltered rows.
func (c *Client) VectorSelect(ctx context.Context, rawSQL string, vector []float32, field string) (*ResultSet, error) {
	sel, err := c.builder.ParseAndValidate(ctx, rawSQL)
	if err != nil {
		return nil, err
	}

	vf, err := c.vector.ResolveField(ctx, sel.From, field)
	if err != nil {
		return nil, err
	}

	limit := sel.EffectiveLimit()
	offset := sel.EffectiveOffset()
	candidates, err := c.vector.Search(ctx, sel.From, vf.Name, vector, limit+offset)
	if err != nil {
		return nil, err
	}

	stmt := Rewrite(sel, candidates.IDs(), limit).Render()
	slog.Debug("executing vector-filtered sql",
		"collection", sel.From, "candidates", len(candidates.Candidates), "stmt", stmt)
	docs, err := c.executor.SQL(ctx, sel.From, stmt)
	if err != nil {
		return nil, err
	}
	return NormalizeSQL(docs, offset), nil
}

// SemanticSearch runs a pure-vector query: embed the text, run KNN, and
// return the ranked hits directly as a ResultSet. No SQL statement is
// involved, so NumFound carries the backend-reported total rather than the
// returned row count.
func (c *Client) SemanticSearch(ctx context.Context, collection, text, field string, limit, offset int) (*ResultSet, error) {
	ok, err := c.resolver.Exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ValidationError{Collection: collection, Msg: "collection not found"}
	}
	if limit < 0 {
		return nil, &ValidationError{Collection: collection, Msg: "limit must be non-negative"}
	}
	if offset < 0 {
		return nil, &ValidationError{Collection: collection, Msg: "offset must be non-negative"}
	}
	if limit == 0 {
		limit = sqlparse.DefaultLimit
	}

	vf, err := c.vector.ResolveField(ctx, collection, field)
	if err != nil {
		return nil, err
	}

	vector, err := c.vector.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	slog.Debug("executing knn search", "collection", collection, "field", vf.Name, "limit", limit, "offset", offset)
	return c.vector.SearchDocs(ctx, collection, vf.Name, vector, limit, offset)
}

// SemanticSelect executes a SELECT filtered by similarity to free text. The
// vector field resolves before the embedding call, so an invalid field never
// costs a provider round trip. Provider failures propagate unretried.
func (c *Client) SemanticSelect(ctx context.Context, rawSQL, text, field string) (*ResultSet, error) {
	sel, err := c.builder.ParseAndValidate(ctx, rawSQL)
	if err != nil {
		return nil, err
	}

	vf, err := c.vector.ResolveField(ctx, sel.From, field)
	if err != nil {
		return nil, err
	}

	vector, err := c.vector.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	limit := sel.EffectiveLimit()
	offset := sel.EffectiveOffset()
	candidates, err := c.vector.Search(ctx, sel.From, vf.Name, vector, limit+offset)
	if err != nil {
		return nil, err
	}

	stmt := Rewrite(sel, candidates.IDs(), limit).Render()
	slog.Debug("executing semantic sql",
		"collection", sel.From, "candidates", len(candidates.Candidates), "stmt", stmt)
	docs, err := c.executor.SQL(ctx, sel.From, stmt)
	if err != nil {
		return nil, err
	}
	return NormalizeSQL(docs, offset), nil
}
