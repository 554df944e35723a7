// Package sharepoint connects Microsoft 365 accounts through Microsoft Graph.
package sharepoint

import (
	"time"

	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
	"golang.org/x/oauth2/microsoft"
)

// Name is the module and entity type name.
const Name = "sharepoint"

// DefaultTenant lets both work and personal accounts sign in.
const DefaultTenant = "common"

var (
	// Endpoint resolves the Microsoft identity platform endpoints of a tenant.
	Endpoint = microsoft.AzureADEndpoint
	// BaseURL is the Microsoft Graph root.
	BaseURL = "https://graph.microsoft.com/v1.0"
)

// Graph throttles with 429 and Retry-After; two spaced retries cover most bursts.
var defaultBackoff = []time.Duration{time.Second, 3 * time.Second}

// Config is the app registration in Azure AD.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	TenantID     string
	// SkipAccountSelection omits prompt=select_account from the authorize URL.
	SkipAccountSelection bool
}

// Module builds Graph clients.
type Module struct {
	conf Config
	opts requester.Options
}

var _ manager.Module = (*Module)(nil)

// NewModule creates the module. Retries default to a short backoff.
func NewModule(conf Config, opts requester.Options) *Module {
	if conf.TenantID == "" {
		conf.TenantID = DefaultTenant
	}
	if opts.Backoff == nil {
		opts.Backoff = defaultBackoff
	}
	return &Module{conf: conf, opts: opts}
}

func (m *Module) Name() string { return Name }

func (m *Module) NewAPI(tokens *requester.Tokens, delegate requester.Delegate) manager.API {
	opts := m.opts
	opts.Delegate = delegate
	return NewClient(m.conf, tokens, opts)
}
