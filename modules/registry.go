// Package modules wires the provider integrations into a registry.
package modules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/log"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/modules/attentive"
	"github.com/pilab-dev/frigg/modules/fastspringiq"
	"github.com/pilab-dev/frigg/modules/hubspot"
	"github.com/pilab-dev/frigg/modules/qbo"
	"github.com/pilab-dev/frigg/modules/sharepoint"
	"github.com/pilab-dev/frigg/requester"
)

// Known lists every provider this build ships.
var Known = []string{attentive.Name, fastspringiq.Name, hubspot.Name, qbo.Name, sharepoint.Name}

// Registry maps module names to modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]manager.Module
}

func NewRegistry() *Registry {
	return &Registry{modules: map[string]manager.Module{}}
}

// Register adds m, replacing a module of the same name.
func (r *Registry) Register(m manager.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name()] = m
}

// Get returns the module called name or errors.ErrModuleNotFound.
func (r *Registry) Get(name string) (manager.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ferrors.ErrModuleNotFound, name)
	}
	return m, nil
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SettingsSource looks up the settings of a module by name.
type SettingsSource interface {
	ModuleSettings(name string) Settings
}

// NewRegistryFromConfig registers every known module that has settings.
// Modules without a client id are skipped; incomplete settings are an error.
func NewRegistryFromConfig(src SettingsSource, opts requester.Options, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ctx := context.Background()
	reg := NewRegistry()

	for _, name := range Known {
		s := src.ModuleSettings(name)
		if !s.Configured() {
			logger.Debug(ctx, "module not configured, skipping", map[string]interface{}{"module": name})
			continue
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("module %s: %w", name, err)
		}
		m, err := Build(name, s, opts)
		if err != nil {
			return nil, err
		}
		reg.Register(m)
		logger.Info(ctx, "module registered", map[string]interface{}{
			"module": name, "rate_limit": s.RateLimit,
		})
	}
	return reg, nil
}

// Build creates the module called name from s. A rate limit in s replaces
// opts.Limiter.
func Build(name string, s Settings, opts requester.Options) (manager.Module, error) {
	if l := s.Limiter(); l != nil {
		opts.Limiter = l
	}
	switch name {
	case hubspot.Name:
		return hubspot.NewModule(hubspot.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURI:  s.RedirectURI,
			Scope:        s.Scope,
		}, opts), nil
	case sharepoint.Name:
		return sharepoint.NewModule(sharepoint.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURI:  s.RedirectURI,
			Scope:        s.Scope,
			TenantID:     s.TenantID,
		}, opts), nil
	case qbo.Name:
		return qbo.NewModule(qbo.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURI:  s.RedirectURI,
			Environment:  s.Environment,
		}, opts), nil
	case attentive.Name:
		return attentive.NewModule(attentive.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURI:  s.RedirectURI,
			Scope:        s.Scope,
			BaseURL:      s.BaseURL,
		}, opts), nil
	case fastspringiq.Name:
		return fastspringiq.NewModule(fastspringiq.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURI:  s.RedirectURI,
			BaseURL:      s.BaseURL,
			APIKey:       s.APIKey,
		}, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ferrors.ErrModuleNotFound, name)
	}
}
