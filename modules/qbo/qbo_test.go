package qbo_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/memory"
	"github.com/pilab-dev/frigg/modules/qbo"
	"github.com/pilab-dev/frigg/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	realm      = "9130"
	otherRealm = "4620"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeQBO struct {
	*httptest.Server
	faultOnce int32
	refreshes int32
	customers []map[string]interface{}
	payments  []qbo.Payment
}

func newFakeQBO(t *testing.T) *fakeQBO {
	t.Helper()
	f := &fakeQBO{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v1/tokens/bearer", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "client credentials are sent with basic auth")
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Empty(t, r.PostForm.Get("client_secret"))

		if r.PostForm.Get("grant_type") == "refresh_token" {
			atomic.AddInt32(&f.refreshes, 1)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "qbo-at", "refresh_token": "qbo-rt", "token_type": "bearer",
			"expires_in": 3600, "x_refresh_token_expires_in": 8726400,
		})
	})
	base := "/v3/company/" + realm + "/"
	mux.HandleFunc(base+"companyinfo/"+realm, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, qbo.MinorVersion, r.URL.Query().Get("minorversion"))
		if atomic.CompareAndSwapInt32(&f.faultOnce, 1, 0) {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"Fault": map[string]interface{}{
					"type":  "AUTHENTICATION",
					"Error": []map[string]string{{"Message": "message=AuthenticationFailed", "code": "3200"}},
				},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"CompanyInfo": map[string]string{"Id": "1", "CompanyName": "Sandbox Company_US_1"},
		})
	})
	mux.HandleFunc(base+"query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "select * from Customer where PrimaryEmailAddr LIKE 'o\\'brien@example.com'", r.URL.Query().Get("query"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"QueryResponse": map[string]interface{}{"Customer": f.customers},
		})
	})
	mux.HandleFunc(base+"customer", func(w http.ResponseWriter, r *http.Request) {
		var c qbo.Customer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		assert.Equal(t, "o'brien@example.com", c.DisplayName)
		c.ID = "58"
		writeJSON(w, http.StatusOK, map[string]interface{}{"Customer": c})
	})
	mux.HandleFunc(base+"invoice", func(w http.ResponseWriter, r *http.Request) {
		var inv qbo.Invoice
		require.NoError(t, json.NewDecoder(r.Body).Decode(&inv))
		inv.ID = "130"
		inv.TotalAmt = inv.Line[0].Amount
		writeJSON(w, http.StatusOK, map[string]interface{}{"Invoice": inv})
	})
	mux.HandleFunc(base+"payment", func(w http.ResponseWriter, r *http.Request) {
		var p qbo.Payment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		f.payments = append(f.payments, p)
		p.ID = "140"
		writeJSON(w, http.StatusOK, map[string]interface{}{"Payment": p})
	})
	mux.HandleFunc("/v3/company/"+otherRealm+"/companyinfo/"+otherRealm, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"CompanyInfo": map[string]string{"Id": "1", "CompanyName": "Second Company"},
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	prevToken, prevSandbox := qbo.TokenURL, qbo.SandboxBaseURL
	qbo.TokenURL = f.URL + "/oauth2/v1/tokens/bearer"
	qbo.SandboxBaseURL = f.URL
	t.Cleanup(func() { qbo.TokenURL, qbo.SandboxBaseURL = prevToken, prevSandbox })
	return f
}

func testConfig() qbo.Config {
	return qbo.Config{ClientID: "key", ClientSecret: "secret", RedirectURI: "http://localhost:3000/redirect/qbo", Environment: qbo.Sandbox}
}

func authenticated(f *fakeQBO) *qbo.Client {
	return qbo.NewClient(testConfig(), &requester.Tokens{AccessToken: "qbo-at", RefreshToken: "qbo-rt", ExternalID: realm},
		requester.Options{HTTPClient: f.Client()})
}

func TestAuthorizationURL(t *testing.T) {
	c := qbo.NewClient(testConfig(), nil, requester.Options{})
	c.SetState("st")
	u, err := url.Parse(c.AuthorizationURL())
	require.NoError(t, err)
	assert.Equal(t, "appcenter.intuit.com", u.Host)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "key", q.Get("client_id"))
	assert.Equal(t, qbo.Scope, q.Get("scope"))
	assert.Equal(t, "st", q.Get("state"))
}

func TestCallsBeforeAuth(t *testing.T) {
	c := qbo.NewClient(testConfig(), nil, requester.Options{})
	assert.False(t, c.IsAuthenticated())

	_, err := c.GetCompanyInfo(context.Background())
	assert.ErrorIs(t, err, ferrors.ErrShouldBeAuthenticated)

	// a token without a realm is not usable either
	c = qbo.NewClient(testConfig(), &requester.Tokens{AccessToken: "at"}, requester.Options{})
	assert.False(t, c.IsAuthenticated())
}

func TestExchangeCodeRequiresRealm(t *testing.T) {
	c := qbo.NewClient(testConfig(), nil, requester.Options{})
	err := c.ExchangeCode(context.Background(), domain.CallbackParams{Data: map[string]string{"code": "c"}})
	assert.ErrorContains(t, err, "realmId")
}

func TestProcessAuthorizationCallback(t *testing.T) {
	ctx := context.Background()
	f := newFakeQBO(t)
	creds := memory.NewCredentialRepository()
	entities := memory.NewEntityRepository()
	module := qbo.NewModule(testConfig(), requester.Options{HTTPClient: f.Client()})

	m, err := manager.New(ctx, module, manager.Options{UserID: "u1", Credentials: creds, Entities: entities})
	require.NoError(t, err)
	res, err := m.ProcessAuthorizationCallback(ctx, domain.CallbackParams{Data: map[string]string{"code": "c", "realmId": realm}})
	require.NoError(t, err)

	entity, err := entities.GetByID(ctx, res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, realm, entity.ExternalID)
	assert.Equal(t, "Sandbox Company_US_1", entity.Name)

	cred, err := creds.GetByID(ctx, res.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, realm, cred.ExternalID)
	require.NotNil(t, cred.RefreshTokenExpire)

	loaded, err := manager.New(ctx, module, manager.Options{EntityID: res.EntityID, Credentials: creds, Entities: entities})
	require.NoError(t, err)
	client, ok := loaded.API().(*qbo.Client)
	require.True(t, ok)
	assert.Equal(t, realm, client.RealmID())
	assert.True(t, loaded.CheckUserAuthorized())
}

func TestTwoCompaniesKeepSeparateCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFakeQBO(t)
	creds := memory.NewCredentialRepository()
	entities := memory.NewEntityRepository()
	module := qbo.NewModule(testConfig(), requester.Options{HTTPClient: f.Client()})

	connect := func(realmID string) *domain.AuthorizationResult {
		t.Helper()
		m, err := manager.New(ctx, module, manager.Options{UserID: "u1", Credentials: creds, Entities: entities})
		require.NoError(t, err)
		res, err := m.ProcessAuthorizationCallback(ctx, domain.CallbackParams{Data: map[string]string{"code": "c", "realmId": realmID}})
		require.NoError(t, err)
		return res
	}
	first := connect(realm)
	second := connect(otherRealm)

	assert.NotEqual(t, first.EntityID, second.EntityID)
	assert.NotEqual(t, first.CredentialID, second.CredentialID)

	stored, err := creds.Find(ctx, domain.CredentialFilter{UserID: "u1", Module: qbo.Name})
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	loaded, err := manager.New(ctx, module, manager.Options{EntityID: first.EntityID, Credentials: creds, Entities: entities})
	require.NoError(t, err)
	client, ok := loaded.API().(*qbo.Client)
	require.True(t, ok)
	assert.Equal(t, realm, client.RealmID())

	// reconnecting a company reuses its own records
	again := connect(realm)
	assert.Equal(t, first.EntityID, again.EntityID)
	assert.Equal(t, first.CredentialID, again.CredentialID)

	// deauthorizing one company leaves the other linked
	other, err := manager.New(ctx, module, manager.Options{EntityID: second.EntityID, Credentials: creds, Entities: entities})
	require.NoError(t, err)
	require.NoError(t, other.Deauthorize(ctx))

	entity, err := entities.GetByID(ctx, first.EntityID)
	require.NoError(t, err)
	assert.Equal(t, first.CredentialID, entity.CredentialID)
	_, err = creds.GetByID(ctx, first.CredentialID)
	assert.NoError(t, err)
}

func TestAuthenticationFaultIsRetriedOnce(t *testing.T) {
	f := newFakeQBO(t)
	c := authenticated(f)

	atomic.StoreInt32(&f.faultOnce, 1)
	info, err := c.GetCompanyInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sandbox Company_US_1", info.CompanyName)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.refreshes))
}

func TestFaultOf(t *testing.T) {
	err := &ferrors.FetchError{StatusCode: 400, Body: `{"Fault":{"type":"ValidationFault","Error":[{"Message":"Duplicate Name Exists Error","code":"6240"}]}}`}
	fault, ok := qbo.FaultOf(err)
	require.True(t, ok)
	assert.Equal(t, "ValidationFault", fault.Type)
	assert.Equal(t, "6240", fault.Error[0].Code)

	_, ok = qbo.FaultOf(&ferrors.FetchError{StatusCode: 500, Body: "<html>"})
	assert.False(t, ok)
}

func TestCreateInvoiceAndPayment(t *testing.T) {
	f := newFakeQBO(t)
	c := authenticated(f)

	invoice, payment, err := c.CreateInvoiceAndPayment(context.Background(), qbo.CustomerParams{Email: "o'brien@example.com"}, 42.5)
	require.NoError(t, err)
	assert.Equal(t, "130", invoice.ID)
	assert.Equal(t, 42.5, invoice.TotalAmt)
	assert.Equal(t, "58", invoice.CustomerRef.Value)
	assert.Equal(t, "140", payment.ID)

	require.Len(t, f.payments, 1)
	require.Len(t, f.payments[0].Line, 1)
	assert.Equal(t, []qbo.LinkedTxn{{TxnID: "130", TxnType: "Invoice"}}, f.payments[0].Line[0].LinkedTxn)
}

func TestGetOrCreateCustomerReusesExisting(t *testing.T) {
	f := newFakeQBO(t)
	f.customers = []map[string]interface{}{{"Id": "7", "DisplayName": "O'Brien"}}
	c := authenticated(f)

	customer, err := c.GetOrCreateCustomer(context.Background(), qbo.CustomerParams{Email: "o'brien@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "7", customer.ID)
}
