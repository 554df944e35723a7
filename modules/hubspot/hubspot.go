// Package hubspot connects HubSpot portals.
package hubspot

import (
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/requester"
)

// Name is the module and entity type name.
const Name = "hubspot"

// Endpoints. Variables so tests can point them at a local server.
var (
	AuthURL  = "https://app.hubspot.com/oauth/authorize"
	TokenURL = "https://api.hubapi.com/oauth/v1/token"
	BaseURL  = "https://api.hubapi.com"
)

// Config is the app registration at HubSpot.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
}

// Module builds HubSpot clients.
type Module struct {
	conf Config
	opts requester.Options
}

var _ manager.Module = (*Module)(nil)

// NewModule creates the module. opts is the template for every client.
func NewModule(conf Config, opts requester.Options) *Module {
	return &Module{conf: conf, opts: opts}
}

func (m *Module) Name() string { return Name }

func (m *Module) NewAPI(tokens *requester.Tokens, delegate requester.Delegate) manager.API {
	opts := m.opts
	opts.Delegate = delegate
	return NewClient(m.conf, tokens, opts)
}
