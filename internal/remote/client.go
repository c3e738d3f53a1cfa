// Package remote is the HTTP client for the external paginated API that
// sync operations pull records from.
//
// The API contract is cursor-based: each page response carries an opaque
// cursor the caller sends back unchanged to get the next page, a hasMore
// flag, and optionally a total count. The total may be absent on early
// pages; callers treat -1 as unknown.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Page is one slice of the remote collection.
type Page struct {
	Items   []map[string]string
	HasMore bool
	Cursor  string
	Total   int // -1 if the remote did not report a total
}

// Client talks to one remote API endpoint family.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a remote API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// pageEnvelope is the remote's wire format for a page response.
type pageEnvelope struct {
	Items      []map[string]json.RawMessage `json:"items"`
	HasMore    bool                         `json:"has_more"`
	NextCursor string                       `json:"next_cursor"`
	Total      *int                         `json:"total"`
}

// FetchPage retrieves one page of the collection at path.
// Pass the cursor from the previous page, or "" for the first page.
func (c *Client) FetchPage(ctx context.Context, path, cursor string, limit int) (Page, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return Page{}, fmt.Errorf("build url: %w", err)
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("fetch %s: status %d: %s", path, resp.StatusCode, body)
	}

	var envelope pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Page{}, fmt.Errorf("decode %s: %w", path, err)
	}

	page := Page{
		HasMore: envelope.HasMore,
		Cursor:  envelope.NextCursor,
		Total:   -1,
	}
	if envelope.Total != nil {
		page.Total = *envelope.Total
	}

	for _, raw := range envelope.Items {
		page.Items = append(page.Items, flattenItem(raw))
	}

	return page, nil
}

// flattenItem converts a JSON object into string fields. Nested values are
// kept as their raw JSON text so the item processor can decide what to do
// with them.
func flattenItem(raw map[string]json.RawMessage) map[string]string {
	item := make(map[string]string, len(raw))
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			item[key] = s
			continue
		}
		item[key] = string(value)
	}
	return item
}
