package doapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// DefaultPerPage is the page size used for list requests. The API caps
// per_page at 200.
const DefaultPerPage = 200

// Pages holds the pagination URLs of a list response.
type Pages struct {
	First string `json:"first,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// Links is the links object of a paginated list response. Some endpoints
// (CDN endpoints among them) omit it entirely; that is treated as a single
// page.
type Links struct {
	Pages *Pages `json:"pages,omitempty"`
}

// Meta is the meta object of a list response.
type Meta struct {
	Total int `json:"total"`
}

// ListAll fetches every page of a list endpoint and concatenates the items
// found under key in each response. It follows links.pages.next until the
// API stops returning one.
func ListAll[T any](ctx context.Context, c *Client, path, key string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("per_page") == "" {
		query.Set("per_page", strconv.Itoa(DefaultPerPage))
	}

	var all []T
	next := path
	for {
		var envelope map[string]json.RawMessage
		if err := c.Get(ctx, next, query, &envelope); err != nil {
			return nil, err
		}
		// Query parameters ride along only on the first request; the next
		// link carries its own.
		query = nil

		raw, ok := envelope[key]
		if !ok {
			// An empty collection may be returned as an absent key.
			return all, nil
		}
		var page []T
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, engine.NewPermanentError(fmt.Sprintf("decode %q page", key), err)
		}
		all = append(all, page...)

		nextURL, err := nextPageURL(envelope)
		if err != nil {
			return nil, err
		}
		if nextURL == "" {
			return all, nil
		}
		next = nextURL
	}
}

// nextPageURL extracts links.pages.next from a list envelope. A missing
// links object means the endpoint does not paginate its responses.
func nextPageURL(envelope map[string]json.RawMessage) (string, error) {
	raw, ok := envelope["links"]
	if !ok {
		return "", nil
	}
	var links Links
	if err := json.Unmarshal(raw, &links); err != nil {
		return "", engine.NewPermanentError("decode pagination links", err)
	}
	if links.Pages == nil {
		return "", nil
	}
	return links.Pages.Next, nil
}
