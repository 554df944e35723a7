// Package fastspringiq connects FastSpring IQ quoting organizations.
package fastspringiq

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Name is the module and entity type name.
const Name = "fastspringiq"

// Scope is the only scope the API offers.
const Scope = "full_access"

// Webhook topics.
const (
	TopicQuoteCreated    = "quotes/create"
	TopicQuoteUpdated    = "quotes/update"
	TopicActivityCreated = "activities/create"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	// APIKey is sent as the api_key header when set.
	APIKey string
}

type Module struct {
	conf Config
	opts requester.Options
}

var _ manager.Module = (*Module)(nil)

func NewModule(conf Config, opts requester.Options) *Module {
	return &Module{conf: conf, opts: opts}
}

func (m *Module) Name() string { return Name }

func (m *Module) NewAPI(tokens *requester.Tokens, delegate requester.Delegate) manager.API {
	opts := m.opts
	opts.Delegate = delegate
	return NewClient(m.conf, tokens, opts)
}

// Client is a FastSpring IQ API client.
type Client struct {
	*requester.OAuth2Requester
	baseURL string
}

var _ manager.API = (*Client)(nil)

func NewClient(conf Config, tokens *requester.Tokens, opts requester.Options) *Client {
	base := strings.TrimRight(conf.BaseURL, "/")
	c := &Client{
		OAuth2Requester: requester.NewOAuth2Requester(requester.OAuth2Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			RedirectURI:  conf.RedirectURI,
			Scope:        Scope,
			AuthURL:      base + "/oauth/index.html",
			TokenURL:     base + "/oauth/token",
		}, tokens, opts),
		baseURL: base,
	}
	if conf.APIKey != "" {
		c.SetHeader("api_key", conf.APIKey)
	}
	return c
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// AuthorizationURL returns the OAuth landing page.
func (c *Client) AuthorizationURL() string {
	conf := c.Config()
	q := requester.NewQuery().
		Add("client_id", conf.ClientID).
		Add("redirect_uri", conf.RedirectURI).
		Add("response_type", "code").
		Add("scope", conf.Scope).
		AddNonEmpty("state", c.State())
	return requester.BuildURL(conf.AuthURL, q)
}

type Organization struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key,omitempty"`
}

// Me is the signed-in user and their organization.
type Me struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Organization *Organization `json:"organization,omitempty"`
}

func (c *Client) GetMe(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.Get(ctx, c.url("/auth/me"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrganization(ctx context.Context) (*Organization, error) {
	var out Organization
	if err := c.Get(ctx, c.url("/my-organization"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TestAuth(ctx context.Context) error {
	_, err := c.GetMe(ctx)
	return err
}

// EntityDetails identifies the organization.
func (c *Client) EntityDetails(ctx context.Context, _ domain.CallbackParams) (*domain.EntityDetails, error) {
	org, err := c.GetOrganization(ctx)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &domain.EntityDetails{ExternalID: org.ID, Name: org.Name}, nil
}

type Quote struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	CompanyID string  `json:"companyId,omitempty"`
}

func (c *Client) ListQuotes(ctx context.Context) ([]Quote, error) {
	var out []Quote
	if err := c.Get(ctx, c.url("/quotes"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetQuote(ctx context.Context, id string) (*Quote, error) {
	var out Quote
	if err := c.Get(ctx, c.url("/quotes/"+url.PathEscape(id)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Webhook struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	Topic  string `json:"topic"`
	Method string `json:"method"`
}

// CreateWebhook subscribes url to topic. Method defaults to POST.
func (c *Client) CreateWebhook(ctx context.Context, hook Webhook) (*Webhook, error) {
	if hook.Method == "" {
		hook.Method = "POST"
	}
	var out Webhook
	if err := c.Post(ctx, c.url("/webhooks"), hook, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	_, err := c.Delete(ctx, c.url("/webhooks/"+url.PathEscape(id)), nil)
	return err
}
