package qbo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Client is a QuickBooks Online accounting client bound to one realm.
type Client struct {
	*requester.OAuth2Requester

	baseURL string
	realmID string
}

var (
	_ manager.API                  = (*Client)(nil)
	_ manager.CredentialIdentifier = (*Client)(nil)
)

// NewClient creates a client. The realm is restored from tokens.ExternalID.
func NewClient(conf Config, tokens *requester.Tokens, opts requester.Options) *Client {
	c := &Client{
		OAuth2Requester: requester.NewOAuth2Requester(conf.oauth2Config(), tokens, opts),
		baseURL:         strings.TrimRight(conf.baseURL(), "/"),
	}
	if tokens != nil {
		c.realmID = tokens.ExternalID
	}
	return c
}

// RealmID returns the company the client is bound to.
func (c *Client) RealmID() string {
	return c.realmID
}

// IsAuthenticated also requires a realm: every API path is realm scoped.
func (c *Client) IsAuthenticated() bool {
	return c.OAuth2Requester.IsAuthenticated() && c.realmID != ""
}

// AuthorizationURL returns the Intuit consent URL.
func (c *Client) AuthorizationURL() string {
	conf := c.Config()
	q := requester.NewQuery().
		Add("response_type", "code").
		Add("redirect_uri", conf.RedirectURI).
		Add("client_id", conf.ClientID).
		Add("scope", conf.Scope).
		AddNonEmpty("state", c.State())
	return requester.BuildURL(conf.AuthURL, q)
}

// ExchangeCode requires the realmId Intuit appends to the redirect.
func (c *Client) ExchangeCode(ctx context.Context, params domain.CallbackParams) error {
	realmID := params.Get("realmId")
	if realmID == "" {
		return errors.New("authorization callback is missing the realmId parameter")
	}
	c.realmID = realmID
	return c.OAuth2Requester.ExchangeCode(ctx, params)
}

// CredentialExternalID returns the realm id.
func (c *Client) CredentialExternalID(context.Context) (string, error) {
	if c.realmID == "" {
		return "", c.shouldBeAuthenticated()
	}
	return c.realmID, nil
}

// TestAuth reads the company info.
func (c *Client) TestAuth(ctx context.Context) error {
	_, err := c.GetCompanyInfo(ctx)
	return err
}

// EntityDetails identifies the company: realm id and company name.
func (c *Client) EntityDetails(ctx context.Context, _ domain.CallbackParams) (*domain.EntityDetails, error) {
	info, err := c.GetCompanyInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get company info: %w", err)
	}
	return &domain.EntityDetails{ExternalID: c.realmID, Name: info.CompanyName}, nil
}

func (c *Client) shouldBeAuthenticated() error {
	if c.IsAuthenticated() {
		return nil
	}
	return ferrors.NewAuthError(Name, ferrors.ErrShouldBeAuthenticated, nil)
}

func (c *Client) url(resource string) string {
	return fmt.Sprintf("%s/v3/company/%s/%s", c.baseURL, url.PathEscape(c.realmID), resource)
}

// Fault is the error envelope of the accounting API.
type Fault struct {
	Type  string `json:"type"`
	Error []struct {
		Message string `json:"Message"`
		Detail  string `json:"Detail"`
		Code    string `json:"code"`
	} `json:"Error"`
}

// FaultOf extracts the Fault carried by a failed call, if any.
func FaultOf(err error) (*Fault, bool) {
	var fe *ferrors.FetchError
	if !errors.As(err, &fe) || fe.Body == "" {
		return nil, false
	}
	var body struct {
		Fault *Fault `json:"Fault"`
	}
	if json.Unmarshal([]byte(fe.Body), &body) != nil || body.Fault == nil {
		return nil, false
	}
	return body.Fault, true
}

func isAuthFault(err error) bool {
	var fe *ferrors.FetchError
	// a 401 was already refreshed and replayed by the requester
	if !errors.As(err, &fe) || fe.StatusCode == http.StatusUnauthorized {
		return false
	}
	f, ok := FaultOf(err)
	return ok && strings.EqualFold(f.Type, "AUTHENTICATION")
}

// call runs fn and, when QuickBooks answers with an AUTHENTICATION fault,
// refreshes the tokens and runs it once more.
func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := c.shouldBeAuthenticated(); err != nil {
		return err
	}
	err := fn()
	if !isAuthFault(err) || !c.Refreshable() {
		return err
	}
	if rerr := c.RefreshAuth(ctx); rerr != nil {
		return err
	}
	return fn()
}

func (c *Client) get(ctx context.Context, resource string, query url.Values, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("minorversion", MinorVersion)
	return c.call(ctx, func() error {
		return c.Get(ctx, c.url(resource), query, out)
	})
}

func (c *Client) post(ctx context.Context, resource string, body, out interface{}) error {
	return c.call(ctx, func() error {
		_, err := c.Do(ctx, &requester.Request{
			Method: http.MethodPost,
			URL:    c.url(resource),
			Query:  url.Values{"minorversion": {MinorVersion}},
			JSON:   body,
			Result: out,
		})
		return err
	})
}
