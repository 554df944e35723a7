package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Client is a HubSpot API client.
type Client struct {
	*requester.OAuth2Requester

	baseURL string
	// token info is cached per access token
	info      *AccessTokenInfo
	infoToken string
}

var (
	_ manager.API                  = (*Client)(nil)
	_ manager.CredentialIdentifier = (*Client)(nil)
)

// NewClient creates a client, authenticated when tokens is not nil.
func NewClient(conf Config, tokens *requester.Tokens, opts requester.Options) *Client {
	return &Client{
		OAuth2Requester: requester.NewOAuth2Requester(requester.OAuth2Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			RedirectURI:  conf.RedirectURI,
			Scope:        conf.Scope,
			AuthURL:      AuthURL,
			TokenURL:     TokenURL,
		}, tokens, opts),
		baseURL: strings.TrimRight(BaseURL, "/"),
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// AuthorizationURL returns the HubSpot install URL.
func (c *Client) AuthorizationURL() string {
	conf := c.Config()
	q := requester.NewQuery().
		Add("client_id", conf.ClientID).
		Add("redirect_uri", conf.RedirectURI).
		Add("scope", conf.Scope).
		AddNonEmpty("state", c.State())
	return requester.BuildURL(conf.AuthURL, q)
}

// UserDetails is the response of the integrations "me" endpoint.
type UserDetails struct {
	PortalID    int64  `json:"portalId"`
	TimeZone    string `json:"timeZone"`
	Currency    string `json:"currency"`
	UTCOffset   string `json:"utcOffset"`
	AccountType string `json:"accountType"`
}

// AccessTokenInfo describes the portal and user behind an access token.
type AccessTokenInfo struct {
	HubID     int64    `json:"hub_id"`
	HubDomain string   `json:"hub_domain"`
	User      string   `json:"user"`
	UserID    int64    `json:"user_id"`
	AppID     int64    `json:"app_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int64    `json:"expires_in"`
}

// GetUserDetails returns the portal settings of the token.
func (c *Client) GetUserDetails(ctx context.Context) (*UserDetails, error) {
	var out UserDetails
	if err := c.Get(ctx, c.url("/integrations/v1/me"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccessTokenInfo returns the portal the current access token belongs to.
func (c *Client) GetAccessTokenInfo(ctx context.Context) (*AccessTokenInfo, error) {
	token := c.AccessToken()
	if c.info != nil && c.infoToken == token {
		return c.info, nil
	}
	var out AccessTokenInfo
	escaped := url.PathEscape(token)
	_, err := c.Do(ctx, &requester.Request{
		Method: http.MethodGet,
		URL:    c.url("/oauth/v1/access-tokens/" + escaped),
		Result: &out,
		Redact: []string{escaped},
	})
	if err != nil {
		return nil, err
	}
	c.info, c.infoToken = &out, token
	return &out, nil
}

// TestAuth fetches the user details.
func (c *Client) TestAuth(ctx context.Context) error {
	_, err := c.GetUserDetails(ctx)
	return err
}

// EntityDetails identifies the portal: hub id and hub domain.
func (c *Client) EntityDetails(ctx context.Context, _ domain.CallbackParams) (*domain.EntityDetails, error) {
	info, err := c.GetAccessTokenInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token info: %w", err)
	}
	return &domain.EntityDetails{
		ExternalID: strconv.FormatInt(info.HubID, 10),
		Name:       info.HubDomain,
	}, nil
}

// CredentialExternalID returns the hub id of the current token.
func (c *Client) CredentialExternalID(ctx context.Context) (string, error) {
	info, err := c.GetAccessTokenInfo(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(info.HubID, 10), nil
}
