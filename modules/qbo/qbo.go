// Package qbo connects QuickBooks Online companies.
package qbo

import (
	"golang.org/x/oauth2"

	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Name is the module and entity type name.
const Name = "qbo"

// Scope grants access to the accounting API.
const Scope = "com.intuit.quickbooks.accounting"

// Environments.
const (
	Sandbox    = "sandbox"
	Production = "production"
)

// Endpoints. Variables so tests can point them at a local server.
var (
	AuthURL           = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL          = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionBaseURL = "https://quickbooks.api.intuit.com"
)

// MinorVersion pins the accounting API schema.
const MinorVersion = "65"

// Config is the app registration at Intuit.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Environment is Sandbox or Production. Empty means Sandbox.
	Environment string
}

func (c Config) baseURL() string {
	if c.Environment == Production {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c Config) oauth2Config() requester.OAuth2Config {
	return requester.OAuth2Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
		Scope:        Scope,
		AuthURL:      AuthURL,
		TokenURL:     TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
}

// Module builds QuickBooks clients.
type Module struct {
	conf Config
	opts requester.Options
}

var _ manager.Module = (*Module)(nil)

// NewModule creates the module.
func NewModule(conf Config, opts requester.Options) *Module {
	return &Module{conf: conf, opts: opts}
}

func (m *Module) Name() string { return Name }

func (m *Module) NewAPI(tokens *requester.Tokens, delegate requester.Delegate) manager.API {
	opts := m.opts
	opts.Delegate = delegate
	return NewClient(m.conf, tokens, opts)
}
