package hubspot

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Object is a CRM v3 object: contact, company or deal.
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Archived   bool              `json:"archived"`
}

// Page is one page of a CRM listing or search.
type Page struct {
	Total   int       `json:"total,omitempty"`
	Results []*Object `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
			Link  string `json:"link"`
		} `json:"next"`
	} `json:"paging,omitempty"`
}

// NextAfter returns the cursor of the next page, or "" on the last page.
func (p *Page) NextAfter() string {
	if p.Paging == nil || p.Paging.Next == nil {
		return ""
	}
	return p.Paging.Next.After
}

type propertiesBody struct {
	Properties map[string]string `json:"properties"`
}

// Filter is a single search criterion.
type Filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value,omitempty"`
}

// FilterGroup criteria are ANDed; groups are ORed.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Sort orders search results.
type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

// SearchRequest is the body of a CRM search.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Sorts        []Sort        `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// CreateContact creates a contact with the given properties.
func (c *Client) CreateContact(ctx context.Context, properties map[string]string) (*Object, error) {
	var out Object
	if err := c.Post(ctx, c.url("/crm/v3/objects/contacts"), propertiesBody{properties}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetContact returns a contact. properties selects the returned fields.
func (c *Client) GetContact(ctx context.Context, id string, properties ...string) (*Object, error) {
	var q url.Values
	if len(properties) > 0 {
		q = url.Values{"properties": {strings.Join(properties, ",")}}
	}
	var out Object
	if err := c.Get(ctx, c.url("/crm/v3/objects/contacts/"+url.PathEscape(id)), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCompany creates a company with the given properties.
func (c *Client) CreateCompany(ctx context.Context, properties map[string]string) (*Object, error) {
	var out Object
	if err := c.Post(ctx, c.url("/crm/v3/objects/companies"), propertiesBody{properties}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeals returns a page of deals starting at the after cursor.
func (c *Client) ListDeals(ctx context.Context, after string, limit int) (*Page, error) {
	q := url.Values{}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out Page
	if err := c.Get(ctx, c.url("/crm/v3/objects/deals"), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchDeals runs a CRM search over deals.
func (c *Client) SearchDeals(ctx context.Context, req SearchRequest) (*Page, error) {
	var out Page
	if err := c.Post(ctx, c.url("/crm/v3/objects/deals/search"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
