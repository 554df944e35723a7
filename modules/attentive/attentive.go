// Package attentive connects Attentive SMS and email marketing accounts.
package attentive

import (
	"context"
	"fmt"
	"strings"

	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Name is the module and entity type name.
const Name = "attentive"

// DefaultBaseURL is the API root used when none is configured.
const DefaultBaseURL = "https://api.attentivemobile.com/v1"

// Endpoints. Variables so tests can point them at a local server.
var (
	AuthURL  = "https://ui.attentivemobile.com/integrations/oauth-install"
	TokenURL = "https://api.attentivemobile.com/v1/authorization-codes/tokens"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	BaseURL      string
}

type Module struct {
	conf Config
	opts requester.Options
}

var _ manager.Module = (*Module)(nil)

func NewModule(conf Config, opts requester.Options) *Module {
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultBaseURL
	}
	return &Module{conf: conf, opts: opts}
}

func (m *Module) Name() string { return Name }

func (m *Module) NewAPI(tokens *requester.Tokens, delegate requester.Delegate) manager.API {
	opts := m.opts
	opts.Delegate = delegate
	return NewClient(m.conf, tokens, opts)
}

// Client is an Attentive API client.
type Client struct {
	*requester.OAuth2Requester
	baseURL string
}

var _ manager.API = (*Client)(nil)

func NewClient(conf Config, tokens *requester.Tokens, opts requester.Options) *Client {
	base := conf.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		OAuth2Requester: requester.NewOAuth2Requester(requester.OAuth2Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			RedirectURI:  conf.RedirectURI,
			Scope:        conf.Scope,
			AuthURL:      AuthURL,
			TokenURL:     TokenURL,
		}, tokens, opts),
		baseURL: strings.TrimRight(base, "/"),
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// AuthorizationURL returns the app install URL.
func (c *Client) AuthorizationURL() string {
	conf := c.Config()
	q := requester.NewQuery().
		Add("client_id", conf.ClientID).
		Add("redirect_uri", conf.RedirectURI).
		Add("scope", conf.Scope).
		AddNonEmpty("state", c.State())
	return requester.BuildURL(conf.AuthURL, q)
}

// TokenIdentity describes the company an access token was issued for.
type TokenIdentity struct {
	ApplicationName     string `json:"applicationName"`
	AttentiveDomainName string `json:"attentiveDomainName"`
	CompanyName         string `json:"companyName"`
	ContactEmail        string `json:"contactEmail"`
	CompanyID           string `json:"companyId"`
}

func (c *Client) GetTokenIdentity(ctx context.Context) (*TokenIdentity, error) {
	var out TokenIdentity
	if err := c.Get(ctx, c.url("/me"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TestAuth(ctx context.Context) error {
	_, err := c.GetTokenIdentity(ctx)
	return err
}

// EntityDetails identifies the company by its Attentive domain.
func (c *Client) EntityDetails(ctx context.Context, _ domain.CallbackParams) (*domain.EntityDetails, error) {
	id, err := c.GetTokenIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token identity: %w", err)
	}
	return &domain.EntityDetails{ExternalID: id.AttentiveDomainName, Name: id.CompanyName}, nil
}

// User identifies a subscriber. At least one of Phone and Email is set.
type User struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type SubscribeRequest struct {
	User           User   `json:"user"`
	SignUpSourceID string `json:"signUpSourceId,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

type Subscription struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type SubscribeResponse struct {
	User          User           `json:"user"`
	Subscriptions []Subscription `json:"subscriptions"`
}

func (c *Client) SubscribeUser(ctx context.Context, req SubscribeRequest) (*SubscribeResponse, error) {
	var out SubscribeResponse
	if err := c.Post(ctx, c.url("/subscriptions"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type UnsubscribeRequest struct {
	User          User           `json:"user"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
	Notification  *struct {
		Language string `json:"language,omitempty"`
	} `json:"notification,omitempty"`
}

func (c *Client) UnsubscribeUser(ctx context.Context, req UnsubscribeRequest) error {
	return c.Post(ctx, c.url("/subscriptions/unsubscribe"), req, nil)
}

// CustomEvent triggers journeys keyed on Type.
type CustomEvent struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
	ExternalID string            `json:"externalEventId,omitempty"`
	User       User              `json:"user"`
}

func (c *Client) CustomEvent(ctx context.Context, event CustomEvent) error {
	return c.Post(ctx, c.url("/events/custom"), event, nil)
}
