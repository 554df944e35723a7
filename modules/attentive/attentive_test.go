package attentive_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/memory"
	"github.com/pilab-dev/frigg/modules/attentive"
	"github.com/pilab-dev/frigg/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/authorization-codes/tokens", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "att-at", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer att-at", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{
			"applicationName": "Frigg", "attentiveDomainName": "acme", "companyName": "Acme Inc", "companyId": "MTIz",
		})
	})
	mux.HandleFunc("/v1/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		var req attentive.SubscribeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+15555550100", req.User.Phone)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user":          req.User,
			"subscriptions": []map[string]string{{"type": "MARKETING", "channel": "TEXT"}},
		})
	})
	mux.HandleFunc("/v1/events/custom", func(w http.ResponseWriter, r *http.Request) {
		var ev attentive.CustomEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "Order Shipped", ev.Type)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	prevAuth, prevToken := attentive.AuthURL, attentive.TokenURL
	attentive.TokenURL = srv.URL + "/v1/authorization-codes/tokens"
	t.Cleanup(func() { attentive.AuthURL, attentive.TokenURL = prevAuth, prevToken })
	return srv
}

func testConfig(base string) attentive.Config {
	return attentive.Config{
		ClientID: "cid", ClientSecret: "secret", RedirectURI: "http://localhost:3000/redirect/attentive",
		Scope: "subscriptions:write events:write", BaseURL: base + "/v1",
	}
}

func TestAuthorizationURL(t *testing.T) {
	c := attentive.NewClient(attentive.Config{ClientID: "cid", RedirectURI: "http://x/cb", Scope: "a b"}, nil, requester.Options{})
	u, err := url.Parse(c.AuthorizationURL())
	require.NoError(t, err)
	assert.Equal(t, "/integrations/oauth-install", u.Path)
	assert.Equal(t, "a b", u.Query().Get("scope"))
	assert.NotContains(t, u.RawQuery, "state=")
}

func TestProcessAuthorizationCallback(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	creds := memory.NewCredentialRepository()
	entities := memory.NewEntityRepository()
	module := attentive.NewModule(testConfig(srv.URL), requester.Options{HTTPClient: srv.Client()})

	m, err := manager.New(ctx, module, manager.Options{UserID: "u1", Credentials: creds, Entities: entities})
	require.NoError(t, err)
	res, err := m.ProcessAuthorizationCallback(ctx, domain.CallbackParams{Data: map[string]string{"code": "c"}})
	require.NoError(t, err)

	entity, err := entities.GetByID(ctx, res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "acme", entity.ExternalID)
	assert.Equal(t, "Acme Inc", entity.Name)
}

func TestSubscriptionsAndEvents(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := attentive.NewClient(testConfig(srv.URL), &requester.Tokens{AccessToken: "att-at"}, requester.Options{HTTPClient: srv.Client()})

	out, err := c.SubscribeUser(ctx, attentive.SubscribeRequest{User: attentive.User{Phone: "+15555550100"}})
	require.NoError(t, err)
	require.Len(t, out.Subscriptions, 1)
	assert.Equal(t, "TEXT", out.Subscriptions[0].Channel)

	require.NoError(t, c.CustomEvent(ctx, attentive.CustomEvent{Type: "Order Shipped", User: attentive.User{Email: "ada@example.com"}}))
}
