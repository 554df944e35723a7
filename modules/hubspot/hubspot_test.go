package hubspot_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/memory"
	"github.com/pilab-dev/frigg/modules/hubspot"
	"github.com/pilab-dev/frigg/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeHubSpot struct {
	*httptest.Server
	meCalls    int32
	rejectOnce int32
}

func newFakeHubSpot(t *testing.T) *fakeHubSpot {
	t.Helper()
	f := &fakeHubSpot{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token": "at-1", "refresh_token": "rt-1", "token_type": "bearer", "expires_in": 1800,
			})
		case "refresh_token":
			assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token": "at-2", "token_type": "bearer", "expires_in": 1800,
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		}
	})
	mux.HandleFunc("/integrations/v1/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.meCalls, 1)
		if atomic.CompareAndSwapInt32(&f.rejectOnce, 1, 0) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "category": "EXPIRED_AUTHENTICATION"})
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer at-") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"portalId": 62515, "timeZone": "US/Eastern", "currency": "USD"})
	})
	mux.HandleFunc("/oauth/v1/access-tokens/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/unknown-token") {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "token not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hub_id": 62515, "hub_domain": "demo.hubspot.com", "user": "ada@example.com",
			"scopes": []string{"crm.objects.contacts.read"},
		})
	})
	mux.HandleFunc("/crm/v3/objects/contacts", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": "101", "properties": body.Properties})
	})
	mux.HandleFunc("/crm/v3/objects/deals", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"results": []map[string]interface{}{{"id": "d1"}, {"id": "d2"}},
			"paging":  map[string]interface{}{"next": map[string]string{"after": "d3"}},
		})
	})
	mux.HandleFunc("/crm/v3/objects/deals/search", func(w http.ResponseWriter, r *http.Request) {
		var req hubspot.SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.FilterGroups, 1)
		assert.Equal(t, "dealstage", req.FilterGroups[0].Filters[0].PropertyName)
		writeJSON(w, http.StatusOK, map[string]interface{}{"total": 1, "results": []map[string]interface{}{{"id": "d1"}}})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	prevAuth, prevToken, prevBase := hubspot.AuthURL, hubspot.TokenURL, hubspot.BaseURL
	hubspot.AuthURL = "https://app.hubspot.com/oauth/authorize"
	hubspot.TokenURL = f.URL + "/oauth/v1/token"
	hubspot.BaseURL = f.URL
	t.Cleanup(func() { hubspot.AuthURL, hubspot.TokenURL, hubspot.BaseURL = prevAuth, prevToken, prevBase })
	return f
}

func testConfig() hubspot.Config {
	return hubspot.Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:3000/redirect/hubspot",
		Scope:        "crm.objects.contacts.read crm.objects.contacts.write",
	}
}

func TestAuthorizationURL(t *testing.T) {
	newFakeHubSpot(t)
	c := hubspot.NewClient(testConfig(), nil, requester.Options{})
	c.SetState("abc")

	u, err := url.Parse(c.AuthorizationURL())
	require.NoError(t, err)
	assert.Equal(t, "app.hubspot.com", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost:3000/redirect/hubspot", u.Query().Get("redirect_uri"))
	assert.Equal(t, "crm.objects.contacts.read crm.objects.contacts.write", u.Query().Get("scope"))
	assert.Equal(t, "abc", u.Query().Get("state"))
	assert.Contains(t, u.RawQuery, "scope=crm.objects.contacts.read%20crm.objects.contacts.write")
}

func TestProcessAuthorizationCallback(t *testing.T) {
	ctx := context.Background()
	f := newFakeHubSpot(t)
	creds := memory.NewCredentialRepository()
	entities := memory.NewEntityRepository()
	module := hubspot.NewModule(testConfig(), requester.Options{HTTPClient: f.Client()})

	m, err := manager.New(ctx, module, manager.Options{UserID: "u1", Credentials: creds, Entities: entities})
	require.NoError(t, err)

	res, err := m.ProcessAuthorizationCallback(ctx, domain.CallbackParams{Data: map[string]string{"code": "the-code"}})
	require.NoError(t, err)
	assert.Equal(t, hubspot.Name, res.Type)

	entity, err := entities.GetByID(ctx, res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "62515", entity.ExternalID)
	assert.Equal(t, "demo.hubspot.com", entity.Name)

	cred, err := creds.GetByID(ctx, res.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "at-1", cred.AccessToken)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.Equal(t, "62515", cred.ExternalID)
	require.NotNil(t, cred.AccessTokenExpire)
}

func TestExpiredTokenIsRefreshedAndPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFakeHubSpot(t)
	creds := memory.NewCredentialRepository()
	entities := memory.NewEntityRepository()
	module := hubspot.NewModule(testConfig(), requester.Options{HTTPClient: f.Client()})

	m, err := manager.New(ctx, module, manager.Options{UserID: "u1", Credentials: creds, Entities: entities})
	require.NoError(t, err)
	res, err := m.ProcessAuthorizationCallback(ctx, domain.CallbackParams{Data: map[string]string{"code": "the-code"}})
	require.NoError(t, err)

	loaded, err := manager.New(ctx, module, manager.Options{EntityID: res.EntityID, Credentials: creds, Entities: entities})
	require.NoError(t, err)

	atomic.StoreInt32(&f.rejectOnce, 1)
	require.True(t, loaded.TestAuth(ctx))

	cred, err := creds.GetByID(ctx, res.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "at-2", cred.AccessToken)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.True(t, cred.AuthIsValid)
}

func TestAccessTokenInfoErrorHidesToken(t *testing.T) {
	f := newFakeHubSpot(t)
	c := hubspot.NewClient(testConfig(), &requester.Tokens{AccessToken: "unknown-token"}, requester.Options{HTTPClient: f.Client()})

	_, err := c.GetAccessTokenInfo(context.Background())
	var fe *ferrors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, f.URL+"/oauth/v1/access-tokens/<redacted>", fe.URL)
	assert.NotContains(t, err.Error(), "unknown-token")
	assert.Equal(t, "<redacted>", fe.RequestHeaders.Get("Authorization"))
}

func TestCRMEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newFakeHubSpot(t)
	c := hubspot.NewClient(testConfig(), &requester.Tokens{AccessToken: "at-1"}, requester.Options{HTTPClient: f.Client()})

	contact, err := c.CreateContact(ctx, map[string]string{"email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "101", contact.ID)
	assert.Equal(t, "ada@example.com", contact.Properties["email"])

	page, err := c.ListDeals(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Results, 2)
	assert.Equal(t, "d3", page.NextAfter())

	found, err := c.SearchDeals(ctx, hubspot.SearchRequest{
		FilterGroups: []hubspot.FilterGroup{{Filters: []hubspot.Filter{{PropertyName: "dealstage", Operator: "EQ", Value: "closedwon"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, found.Total)
	assert.Empty(t, found.NextAfter())
}

func TestModule(t *testing.T) {
	m := hubspot.NewModule(testConfig(), requester.Options{})
	assert.Equal(t, "hubspot", m.Name())

	api := m.NewAPI(nil, nil)
	assert.False(t, api.IsAuthenticated())

	api = m.NewAPI(&requester.Tokens{AccessToken: "at"}, nil)
	assert.True(t, api.IsAuthenticated())
	_, ok := api.(manager.CredentialIdentifier)
	assert.True(t, ok)
}
