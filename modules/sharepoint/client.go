package sharepoint

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Client is a Microsoft Graph client scoped to files and sites.
type Client struct {
	*requester.OAuth2Requester

	baseURL       string
	selectAccount bool
}

var _ manager.API = (*Client)(nil)

// NewClient creates a client, authenticated when tokens is not nil.
func NewClient(conf Config, tokens *requester.Tokens, opts requester.Options) *Client {
	tenant := conf.TenantID
	if tenant == "" {
		tenant = DefaultTenant
	}
	ep := Endpoint(tenant)
	return &Client{
		OAuth2Requester: requester.NewOAuth2Requester(requester.OAuth2Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			RedirectURI:  conf.RedirectURI,
			Scope:        conf.Scope,
			AuthURL:      ep.AuthURL,
			TokenURL:     ep.TokenURL,
		}, tokens, opts),
		baseURL:       strings.TrimRight(BaseURL, "/"),
		selectAccount: !conf.SkipAccountSelection,
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// AuthorizationURL returns the tenant's authorize URL.
func (c *Client) AuthorizationURL() string {
	conf := c.Config()
	q := requester.NewQuery().
		Add("client_id", conf.ClientID).
		Add("response_type", "code").
		Add("redirect_uri", conf.RedirectURI).
		Add("scope", conf.Scope).
		AddNonEmpty("state", c.State())
	if c.selectAccount {
		q.Add("prompt", "select_account")
	}
	return requester.BuildURL(conf.AuthURL, q)
}

// User is the signed-in Graph user.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
}

// Organization is the tenant of the signed-in user.
type Organization struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Site is a SharePoint site.
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// Drive is a document library.
type Drive struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	WebURL    string `json:"webUrl"`
}

// DriveItem is a file or folder.
type DriveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	WebURL string `json:"webUrl"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
}

// Collection is a Graph collection page.
type Collection[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// GetUser returns the signed-in user.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.Get(ctx, c.url("/me"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrganization returns the user's organization.
func (c *Client) GetOrganization(ctx context.Context) (*Organization, error) {
	var out Collection[Organization]
	if err := c.Get(ctx, c.url("/organization"), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, fmt.Errorf("graph returned no organization")
	}
	return &out.Value[0], nil
}

// ListSites returns the sites visible to the user.
func (c *Client) ListSites(ctx context.Context) (*Collection[Site], error) {
	var out Collection[Site]
	if err := c.Get(ctx, c.url("/sites"), url.Values{"search": {"*"}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDrives returns the document libraries of a site.
func (c *Client) ListDrives(ctx context.Context, siteID string) (*Collection[Drive], error) {
	var out Collection[Drive]
	if err := c.Get(ctx, c.url("/sites/"+url.PathEscape(siteID)+"/drives"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FolderQuery selects a folder listing. An empty FolderID lists the drive
// root; NextPageURL continues a previous listing.
type FolderQuery struct {
	DriveID     string
	FolderID    string
	NextPageURL string
}

// GetFolder lists the children of a folder.
func (c *Client) GetFolder(ctx context.Context, q FolderQuery) (*Collection[DriveItem], error) {
	var out Collection[DriveItem]
	if q.NextPageURL != "" {
		if err := c.Get(ctx, q.NextPageURL, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	folder := q.FolderID
	if folder == "" {
		folder = "root"
	}
	path := fmt.Sprintf("/drives/%s/items/%s/children", url.PathEscape(q.DriveID), url.PathEscape(folder))
	query := url.Values{"$expand": {"thumbnails"}, "$top": {"8"}}
	if err := c.Get(ctx, c.url(path), query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestAuth searches the sites.
func (c *Client) TestAuth(ctx context.Context) error {
	_, err := c.ListSites(ctx)
	return err
}

// EntityDetails identifies the signed-in user.
func (c *Client) EntityDetails(ctx context.Context, _ domain.CallbackParams) (*domain.EntityDetails, error) {
	user, err := c.GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &domain.EntityDetails{
		ExternalID: user.ID,
		Name:       fmt.Sprintf("%s (%s)", user.DisplayName, user.UserPrincipalName),
	}, nil
}
