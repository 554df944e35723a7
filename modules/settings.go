package modules

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	ferrors "github.com/pilab-dev/frigg/errors"
)

// Settings is the client registration of one module.
type Settings struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RedirectURI  string `mapstructure:"redirect_uri" validate:"required,url"`
	Scope        string `mapstructure:"scope"`
	// TenantID is the Azure AD tenant (sharepoint).
	TenantID string `mapstructure:"tenant_id"`
	// Environment is sandbox or production (qbo).
	Environment string `mapstructure:"environment" validate:"omitempty,oneof=sandbox production"`
	// BaseURL overrides the API root (attentive, fastspringiq).
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string `mapstructure:"api_key"`
	// RateLimit caps outgoing requests per second; zero means unlimited.
	// RateBurst defaults to the rounded-up rate.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`
}

var validate = validator.New()

// Configured reports whether any client registration was provided.
func (s Settings) Configured() bool {
	return s.ClientID != "" || s.ClientSecret != ""
}

// Validate checks the registration is complete. The returned error wraps
// errors.ErrModuleNotConfigured.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid %s", ferrors.ErrModuleNotConfigured, strings.Join(fields, ", "))
}

// Limiter returns the limiter shared by every client of the module, or nil
// when requests are not limited.
func (s Settings) Limiter() *rate.Limiter {
	if s.RateLimit <= 0 {
		return nil
	}
	burst := s.RateBurst
	if burst <= 0 {
		burst = int(math.Ceil(s.RateLimit))
	}
	return rate.NewLimiter(rate.Limit(s.RateLimit), burst)
}
