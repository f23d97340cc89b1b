// Package indexer ingests documents into a search collection: it embeds
// each document's content with the configured provider and posts the
// result, including metadata mapped to dynamic fields, to the collection's
// update endpoint.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Embedder generates embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer posts embedded documents to a search backend.
type Indexer struct {
	baseURL  string
	embedder Embedder
	client   *http.Client
	logger   *slog.Logger
}

// New creates an Indexer targeting the given backend base URL
// (e.g. http://localhost:8983/solr).
func New(baseURL string, embedder Embedder, timeout time.Duration) *Indexer {
	return &Indexer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		embedder: embedder,
		client:   &http.Client{Timeout: timeout},
		logger:   slog.Default(),
	}
}

// Index embeds every document's content and posts the batch to the
// collection with an immediate commit. vectorField names the dense-vector
// field receiving the embedding. Any single embedding failure aborts the
// whole batch; nothing is posted.
func (ix *Indexer) Index(ctx context.Context, collection, vectorField string, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	vectors, err := ix.embedBatch(ctx, docs)
	if err != nil {
		return 0, err
	}

	payload := make([]map[string]any, len(docs))
	for i, doc := range docs {
		fields := map[string]any{
			"id":        doc.ID,
			"content":   doc.Content,
			vectorField: vectors[i],
		}
		for k, v := range dynamicFields(doc.Metadata) {
			fields[k] = v
		}
		payload[i] = fields
	}

	if err := ix.post(ctx, collection, payload); err != nil {
		return 0, err
	}

	ix.logger.Info("indexed documents", "collection", collection, "count", len(docs))
	return len(docs), nil
}

// embedBatch generates one embedding per document with bounded concurrency.
// A failed embedding fails the batch; there is no zero-vector fallback.
func (ix *Indexer) embedBatch(ctx context.Context, docs []Document) ([][]float32, error) {
	results := make([][]float32, len(docs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			vec, err := ix.embedder.Embed(gCtx, doc.Content)
			if err != nil {
				return fmt.Errorf("embedding document %s: %w", doc.ID, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (ix *Indexer) post(ctx context.Context, collection string, payload []map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding update payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/update?commit=true", ix.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ix.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting update to %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("update on %s returned %d: %s", collection, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
