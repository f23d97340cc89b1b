package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Executor is the transport boundary to the search backend. It sends
// finished statements and raw queries; it never rewrites or interprets them.
// All backend network errors surface here and nowhere else.
type Executor struct {
	baseURL string
	client  *http.Client
}

// NewExecutor creates an Executor against the Solr base URL. The client's
// timeout is the backend timeout; a nil client falls back to the default.
func NewExecutor(baseURL string, client *http.Client) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// SelectRequest is the JSON body of the backend query endpoint.
type SelectRequest struct {
	Query  string `json:"query"`
	Fields string `json:"fields,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SelectResponse is the decoded envelope of the backend query endpoint.
type SelectResponse struct {
	NumFound int64
	Docs     []map[string]any
}

// Select posts a query (lucene or {!knn ...} syntax) to the collection's
// query endpoint.
func (e *Executor) Select(ctx context.Context, collection string, req SelectRequest) (*SelectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding select request: %w", err)
	}

	u := fmt.Sprintf("%s/%s/select", e.baseURL, collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating select request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ExecutionError{Collection: collection, StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var envelope struct {
		Response struct {
			NumFound int64            `json:"numFound"`
			Docs     []map[string]any `json:"docs"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding select response: %w", err)
	}
	return &SelectResponse{NumFound: envelope.Response.NumFound, Docs: envelope.Response.Docs}, nil
}

// SQL posts a SELECT statement to the collection's SQL endpoint and returns
// the raw result-set docs, including any backend end-of-stream doc. Solr
// reports SQL execution failures as an EXCEPTION entry inside a 200
// response; those are classified as ExecutionError here.
func (e *Executor) SQL(ctx context.Context, collection, stmt string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("stmt", stmt)
	form.Set("aggregationMode", "facet")

	u := fmt.Sprintf("%s/%s/sql", e.baseURL, collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating sql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ExecutionError{Collection: collection, StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var envelope struct {
		ResultSet struct {
			Docs []map[string]any `json:"docs"`
		} `json:"result-set"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding sql response: %w", err)
	}

	for _, d := range envelope.ResultSet.Docs {
		if exc, ok := d["EXCEPTION"]; ok {
			return nil, &ExecutionError{
				Collection: collection,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("%v", exc),
			}
		}
	}
	return envelope.ResultSet.Docs, nil
}
