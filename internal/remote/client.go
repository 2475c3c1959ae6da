// Package remote is a client for the hosted document store the shop's data
// lives in: document CRUD per collection, filtered listing and a realtime
// change channel.
package remote

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
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx response the store described in its error body.
type APIError struct {
	Status  int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Config locates the store.
type Config struct {
	Endpoint string // e.g. https://cloud.example.com/v1
	Project  string
	APIKey   string
	Database string
	Session  string // optional user session, used to authenticate realtime
	Timeout  time.Duration
}

// Client talks to one database of the store.
type Client struct {
	Endpoint string
	Project  string
	APIKey   string
	Database string
	Session  string
	HTTP     *http.Client
}

// New creates a client. A zero timeout means 15s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		Endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		Project:  cfg.Project,
		APIKey:   cfg.APIKey,
		Database: cfg.Database,
		Session:  cfg.Session,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// DocumentList is a page of documents.
type DocumentList struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

type createBody struct {
	DocumentID  string         `json:"documentId"`
	Data        map[string]any `json:"data"`
	Permissions []string       `json:"permissions,omitempty"`
}

type updateBody struct {
	Data map[string]any `json:"data"`
}

func (c *Client) documentsPath(collectionID string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents",
		url.PathEscape(c.Database), url.PathEscape(collectionID))
}

// CreateDocument creates a document with the caller-chosen id.
func (c *Client) CreateDocument(ctx context.Context, collectionID, documentID string, data map[string]any, permissions ...string) (*Document, error) {
	body := createBody{DocumentID: documentID, Data: data, Permissions: permissions}
	var doc Document
	if err := c.do(ctx, http.MethodPost, c.documentsPath(collectionID), body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDocument patches the given attributes of a document.
func (c *Client) UpdateDocument(ctx context.Context, collectionID, documentID string, data map[string]any) (*Document, error) {
	var doc Document
	path := c.documentsPath(collectionID) + "/" + url.PathEscape(documentID)
	if err := c.do(ctx, http.MethodPatch, path, updateBody{Data: data}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document.
func (c *Client) DeleteDocument(ctx context.Context, collectionID, documentID string) error {
	path := c.documentsPath(collectionID) + "/" + url.PathEscape(documentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListDocuments returns one page matching the query filters.
func (c *Client) ListDocuments(ctx context.Context, collectionID string, queries ...string) (*DocumentList, error) {
	path := c.documentsPath(collectionID)
	if len(queries) > 0 {
		params := url.Values{}
		for _, q := range queries {
			params.Add("queries[]", q)
		}
		path += "?" + params.Encode()
	}
	var list DocumentList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// pageSize is the largest page the store serves.
const pageSize = 100

// ListAll follows cursors until every matching document has been fetched.
func (c *Client) ListAll(ctx context.Context, collectionID string, queries ...string) ([]Document, error) {
	var (
		all    []Document
		cursor string
	)
	for {
		q := append([]string{}, queries...)
		q = append(q, Limit(pageSize))
		if cursor != "" {
			q = append(q, CursorAfter(cursor))
		}
		page, err := c.ListDocuments(ctx, collectionID, q...)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Documents...)
		if len(page.Documents) < pageSize {
			return all, nil
		}
		cursor = page.Documents[len(page.Documents)-1].ID
	}
}

// Health checks the store is reachable. It needs no credentials.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health/version", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Project != "" {
		req.Header.Set("X-Appwrite-Project", c.Project)
	}
	if c.APIKey != "" {
		req.Header.Set("X-Appwrite-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		apiErr.Status = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
