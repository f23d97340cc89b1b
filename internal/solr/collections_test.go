package solr

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// listProvider is a scriptable CollectionProvider counting calls.
type listProvider struct {
	mu    sync.Mutex
	sets  [][]string
	calls int
	err   error
}

func (p *listProvider) ListCollections(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls
	if i >= len(p.sets) {
		i = len(p.sets) - 1
	}
	p.calls++
	return p.sets[i], nil
}

func TestResolver_ExistsCachesPositive(t *testing.T) {
	p := &listProvider{sets: [][]string{{"docs", "items"}}}
	r := NewResolver(p)

	for i := 0; i < 3; i++ {
		ok, err := r.Exists(context.Background(), "docs")
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if !ok {
			t.Fatal("Exists(docs) = false, want true")
		}
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}

func TestResolver_MissTriggersOneRefresh(t *testing.T) {
	// A collection created after the first load resolves on re-fetch.
	p := &listProvider{sets: [][]string{{"docs"}, {"docs", "fresh"}}}
	r := NewResolver(p)

	if ok, _ := r.Exists(context.Background(), "docs"); !ok {
		t.Fatal("Exists(docs) = false, want true")
	}
	ok, err := r.Exists(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists(fresh) = false, want true after refresh")
	}
	if p.calls != 2 {
		t.Errorf("provider called %d times, want 2", p.calls)
	}
}

func TestResolver_UnknownStaysUnknown(t *testing.T) {
	p := &listProvider{sets: [][]string{{"docs"}}}
	r := NewResolver(p)

	ok, err := r.Exists(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists(nope) = true, want false")
	}
}

func TestResolver_ProviderErrorPropagates(t *testing.T) {
	p := &listProvider{err: errors.New("zk down")}
	r := NewResolver(p)

	if _, err := r.Exists(context.Background(), "docs"); err == nil {
		t.Fatal("expected provider error")
	}
	if _, err := r.List(context.Background()); err == nil {
		t.Fatal("expected provider error from List")
	}
}

func TestResolver_ConcurrentMissesShareFetch(t *testing.T) {
	p := &listProvider{sets: [][]string{{"docs"}}}
	r := NewResolver(p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Exists(context.Background(), "docs")
		}()
	}
	wg.Wait()

	// Singleflight may admit a second round after the first completes, but a
	// stampede of eight identical fetches must not happen.
	if p.calls > 2 {
		t.Errorf("provider called %d times, want at most 2", p.calls)
	}
}
