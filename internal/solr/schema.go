package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Field describes one schema field of a collection.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Indexed     bool   `json:"indexed"`
	Stored      bool   `json:"stored"`
	DocValues   bool   `json:"docValues"`
	MultiValued bool   `json:"multiValued"`
	Vector      bool   `json:"vector"`
}

// denseVectorClass is the Solr field-type class backing KNN search.
const denseVectorClass = "solr.DenseVectorField"

// FieldCatalog fetches and caches per-collection field metadata. Cached
// catalogs are immutable snapshots replaced atomically on refresh; readers
// never observe a partially built catalog. Concurrent misses for the same
// collection share one in-flight fetch.
type FieldCatalog struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	cache map[string][]Field

	group singleflight.Group
}

// NewFieldCatalog creates a catalog against the Solr base URL.
func NewFieldCatalog(baseURL string, client *http.Client) *FieldCatalog {
	if client == nil {
		client = http.DefaultClient
	}
	return &FieldCatalog{
		baseURL: baseURL,
		client:  client,
		cache:   make(map[string][]Field),
	}
}

// Fields returns the field descriptors for a collection, fetching them on
// first reference and serving the cached snapshot afterwards.
func (fc *FieldCatalog) Fields(ctx context.Context, collection string) ([]Field, error) {
	fc.mu.RLock()
	fields, ok := fc.cache[collection]
	fc.mu.RUnlock()
	if ok {
		return fields, nil
	}
	return fc.refresh(ctx, collection)
}

// Invalidate drops the cached catalog for a collection; the next reference
// re-fetches.
func (fc *FieldCatalog) Invalidate(collection string) {
	fc.mu.Lock()
	delete(fc.cache, collection)
	fc.mu.Unlock()
}

// FieldByName returns the named field descriptor.
func (fc *FieldCatalog) FieldByName(ctx context.Context, collection, name string) (Field, bool, error) {
	fields, err := fc.Fields(ctx, collection)
	if err != nil {
		return Field{}, false, err
	}
	for _, f := range fields {
		if f.Name == name {
			return f, true, nil
		}
	}
	return Field{}, false, nil
}

func (fc *FieldCatalog) refresh(ctx context.Context, collection string) ([]Field, error) {
	v, err, _ := fc.group.Do(collection, func() (any, error) {
		fields, err := fc.fetch(ctx, collection)
		if err != nil {
			return nil, err
		}
		fc.mu.Lock()
		fc.cache[collection] = fields
		fc.mu.Unlock()
		return fields, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Field), nil
}

type schemaFieldsResponse struct {
	Fields []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Indexed     *bool  `json:"indexed"`
		Stored      *bool  `json:"stored"`
		DocValues   *bool  `json:"docValues"`
		MultiValued *bool  `json:"multiValued"`
	} `json:"fields"`
}

type schemaFieldTypesResponse struct {
	FieldTypes []struct {
		Name  string `json:"name"`
		Class string `json:"class"`
	} `json:"fieldTypes"`
}

// fetch combines /schema/fields and /schema/fieldtypes into Field
// descriptors. The fieldtypes lookup resolves which declared types are
// dense-vector backed.
func (fc *FieldCatalog) fetch(ctx context.Context, collection string) ([]Field, error) {
	var fieldsBody schemaFieldsResponse
	if err := fc.getJSON(ctx, collection, "/schema/fields?showDefaults=true", &fieldsBody); err != nil {
		return nil, err
	}

	var typesBody schemaFieldTypesResponse
	if err := fc.getJSON(ctx, collection, "/schema/fieldtypes?showDefaults=true", &typesBody); err != nil {
		return nil, err
	}

	vectorTypes := make(map[string]bool, len(typesBody.FieldTypes))
	for _, ft := range typesBody.FieldTypes {
		if ft.Class == denseVectorClass || strings.Contains(ft.Name, "knn_vector") {
			vectorTypes[ft.Name] = true
		}
	}

	fields := make([]Field, 0, len(fieldsBody.Fields))
	for _, f := range fieldsBody.Fields {
		fields = append(fields, Field{
			Name:        f.Name,
			Type:        f.Type,
			Indexed:     boolOr(f.Indexed, true),
			Stored:      boolOr(f.Stored, true),
			DocValues:   boolOr(f.DocValues, false),
			MultiValued: boolOr(f.MultiValued, false),
			Vector:      vectorTypes[f.Type],
		})
	}
	return fields, nil
}

func (fc *FieldCatalog) getJSON(ctx context.Context, collection, path string, out any) error {
	u := fc.baseURL + "/" + collection + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating schema request: %w", err)
	}

	resp, err := fc.client.Do(req)
	if err != nil {
		return &ConnectionError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ExecutionError{Collection: collection, StatusCode: resp.StatusCode, Message: "schema request failed"}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding schema response for %s: %w", collection, err)
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
