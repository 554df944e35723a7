package domain

// AuthType names how a module authorizes.
type AuthType string

const (
	AuthTypeOAuth2 AuthType = "oauth2"
	AuthTypeOAuth1 AuthType = "oauth1"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "apiKey"
)

// AuthorizationRequirements tells the caller where to send the user.
type AuthorizationRequirements struct {
	URL   string   `json:"url"`
	Type  AuthType `json:"type"`
	State string   `json:"state,omitempty"`
	Data  []string `json:"data,omitempty"` // form fields for non-redirect auth types
}

// CallbackParams is what the provider redirect handed back to us, typically
// {"code": "...", "state": "..."} plus provider extras such as QBO's realmId.
type CallbackParams struct {
	Data map[string]string `json:"data"`
}

// Get returns a callback value or "" when absent.
func (p CallbackParams) Get(key string) string {
	if p.Data == nil {
		return ""
	}
	return p.Data[key]
}

// AuthorizationResult is returned once a callback is fully processed.
type AuthorizationResult struct {
	EntityID     string `json:"entity_id"`
	CredentialID string `json:"credential_id"`
	Type         string `json:"type"`
}
