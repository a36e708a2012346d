// Package store is the client for the managed document store. It exposes the
// handful of operations the pipelines need (list with an equality filter,
// create, update, and a fixed-id put) and owns every string<->number
// conversion for persisted fields, so the rest of the code works on typed
// values.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	endpoint   string
	projectID  string
	apiKey     string
	httpClient *http.Client
}

// Document is one stored record with its server-side identity.
type Document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type listResponse struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

// StatusError is a non-2xx reply from the store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a store 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func NewClient(endpoint, projectID, apiKey string) *Client {
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		projectID: projectID,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// WithKey returns a client identical to c that authenticates with key.
// Function invocations use it to act under the caller's store credentials.
func (c *Client) WithKey(key string) *Client {
	cp := *c
	cp.apiKey = key
	return &cp
}

// Equal builds an equality filter over a document field.
func Equal(field, value string) string {
	return fmt.Sprintf("equal(%q,%q)", field, value)
}

// ListDocuments returns the documents of a collection, optionally narrowed by
// filters built with Equal.
func (c *Client) ListDocuments(ctx context.Context, db, col string, filters ...string) ([]Document, error) {
	path := fmt.Sprintf("/v1/databases/%s/collections/%s/documents", url.PathEscape(db), url.PathEscape(col))
	if len(filters) > 0 {
		q := url.Values{}
		for _, f := range filters {
			q.Add("query", f)
		}
		path += "?" + q.Encode()
	}
	var out listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// GetDocument fetches one document by its identifier.
func (c *Client) GetDocument(ctx context.Context, db, col, id string) (Document, error) {
	var out Document
	err := c.do(ctx, http.MethodGet, documentPath(db, col, id), nil, &out)
	return out, err
}

// CreateDocument inserts a document. An empty id asks for a generated one.
func (c *Client) CreateDocument(ctx context.Context, db, col, id string, data map[string]any) (Document, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	payload := Document{ID: id, Data: data}
	path := fmt.Sprintf("/v1/databases/%s/collections/%s/documents", url.PathEscape(db), url.PathEscape(col))
	var out Document
	err := c.do(ctx, http.MethodPost, path, payload, &out)
	return out, err
}

// UpdateDocument overwrites the data of an existing document.
func (c *Client) UpdateDocument(ctx context.Context, db, col, id string, data map[string]any) (Document, error) {
	payload := Document{ID: id, Data: data}
	var out Document
	err := c.do(ctx, http.MethodPatch, documentPath(db, col, id), payload, &out)
	return out, err
}

// PutDocument updates a document by a well-known identifier, creating it when
// absent. This is the idempotent upsert used for singleton records; there is
// no list-then-create window.
func (c *Client) PutDocument(ctx context.Context, db, col, id string, data map[string]any) (Document, error) {
	doc, err := c.UpdateDocument(ctx, db, col, id, data)
	if err == nil {
		return doc, nil
	}
	if !IsNotFound(err) {
		return Document{}, err
	}
	return c.CreateDocument(ctx, db, col, id, data)
}

func documentPath(db, col, id string) string {
	return fmt.Sprintf("/v1/databases/%s/collections/%s/documents/%s",
		url.PathEscape(db), url.PathEscape(col), url.PathEscape(id))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Rigged-Project", c.projectID)
	req.Header.Set("X-Rigged-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode store response: %w", err)
	}
	return nil
}
