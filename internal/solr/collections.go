package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"golang.org/x/sync/singleflight"
)

// CollectionProvider lists the live logical collections of the cluster.
// Two implementations exist: a direct backend admin query and a ZooKeeper
// lookup for SolrCloud deployments with a configured coordination service.
type CollectionProvider interface {
	ListCollections(ctx context.Context) ([]string, error)
}

// HTTPCollectionProvider lists collections via the backend admin API.
type HTTPCollectionProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCollectionProvider creates a provider against the Solr base URL
// (e.g. http://localhost:8983/solr).
func NewHTTPCollectionProvider(baseURL string, client *http.Client) *HTTPCollectionProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCollectionProvider{baseURL: baseURL, client: client}
}

func (p *HTTPCollectionProvider) ListCollections(ctx context.Context) ([]string, error) {
	u := p.baseURL + "/admin/collections?action=LIST"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection list request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExecutionError{StatusCode: resp.StatusCode, Message: "listing collections failed"}
	}

	var body struct {
		Collections []string `json:"collections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding collection list: %w", err)
	}
	return body.Collections, nil
}

// ZKCollectionProvider lists collections from the coordination service.
// SolrCloud registers each collection as a child znode of /collections.
type ZKCollectionProvider struct {
	hosts   []string
	timeout time.Duration
}

// NewZKCollectionProvider creates a provider connecting to the given
// ZooKeeper host list.
func NewZKCollectionProvider(hosts []string, timeout time.Duration) *ZKCollectionProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ZKCollectionProvider{hosts: hosts, timeout: timeout}
}

func (p *ZKCollectionProvider) ListCollections(ctx context.Context) ([]string, error) {
	conn, _, err := zk.Connect(p.hosts, p.timeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, &ConnectionError{URL: fmt.Sprintf("zookeeper %v", p.hosts), Err: err}
	}
	defer conn.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children, _, err := conn.Children("/collections")
	if err != nil {
		return nil, &ConnectionError{URL: fmt.Sprintf("zookeeper %v", p.hosts), Err: err}
	}
	return children, nil
}

// Resolver caches the live collection set for the process lifetime.
// Existence checks on a cache miss trigger exactly one refresh; concurrent
// misses share the in-flight fetch via singleflight.
type Resolver struct {
	provider CollectionProvider

	mu    sync.RWMutex
	known map[string]bool

	group singleflight.Group
}

// NewResolver creates a Resolver over the given provider.
func NewResolver(provider CollectionProvider) *Resolver {
	return &Resolver{provider: provider, known: make(map[string]bool)}
}

// List returns the current live collection set, refreshing the cache.
func (r *Resolver) List(ctx context.Context) ([]string, error) {
	return r.refresh(ctx)
}

// Exists reports whether the named collection is live. The cached set is
// consulted first; a miss forces one refresh before answering false, so
// collections created after startup still resolve.
func (r *Resolver) Exists(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	ok := r.known[name]
	r.mu.RUnlock()
	if ok {
		return true, nil
	}

	// Miss: one re-fetch before rejecting, shared across concurrent callers.
	if _, err := r.refresh(ctx); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known[name], nil
}

func (r *Resolver) refresh(ctx context.Context) ([]string, error) {
	v, err, _ := r.group.Do("collections", func() (any, error) {
		names, err := r.provider.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		// Copy-on-refresh: build the new set aside, swap under the lock.
		next := make(map[string]bool, len(names))
		for _, n := range names {
			next[n] = true
		}
		r.mu.Lock()
		r.known = next
		r.mu.Unlock()
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
