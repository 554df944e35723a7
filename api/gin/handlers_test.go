package ginapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ginapi "github.com/pilab-dev/frigg/api/gin"
	"github.com/pilab-dev/frigg/cache"
	"github.com/pilab-dev/frigg/domain"
	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/memory"
	"github.com/pilab-dev/frigg/modules"
	"github.com/pilab-dev/frigg/requester"
)

type stubAPI struct {
	mod      *stubModule
	tokens   requester.Tokens
	delegate requester.Delegate
	state    string
}

func (a *stubAPI) Tokens() requester.Tokens { return a.tokens }
func (a *stubAPI) SetState(state string)    { a.state = state }
func (a *stubAPI) IsAuthenticated() bool    { return a.tokens.AccessToken != "" }

func (a *stubAPI) AuthorizationURL() string {
	q := url.Values{"client_id": {"cid"}}
	if a.state != "" {
		q.Set("state", a.state)
	}
	return "https://provider.test/authorize?" + q.Encode()
}

func (a *stubAPI) ExchangeCode(ctx context.Context, params domain.CallbackParams) error {
	if a.mod.exchangeErr != nil {
		return a.mod.exchangeErr
	}
	exp := time.Now().Add(time.Hour)
	a.tokens = requester.Tokens{AccessToken: "at-" + params.Get("code"), RefreshToken: "rt", AccessTokenExpire: &exp}
	return a.delegate.ReceiveNotification(ctx, a, requester.EventTokenUpdated)
}

func (a *stubAPI) TestAuth(context.Context) error {
	if !a.IsAuthenticated() {
		return errors.New("no token")
	}
	return a.mod.testErr
}

func (a *stubAPI) EntityDetails(context.Context, domain.CallbackParams) (*domain.EntityDetails, error) {
	if a.mod.detailsErr != nil {
		return nil, a.mod.detailsErr
	}
	return &domain.EntityDetails{ExternalID: "acct-1", Name: "Account One"}, nil
}

type stubModule struct {
	exchangeErr error
	testErr     error
	detailsErr  error
}

func (m *stubModule) Name() string { return "stub" }

func (m *stubModule) NewAPI(tokens *requester.Tokens, delegate requester.Delegate) manager.API {
	a := &stubAPI{mod: m, delegate: delegate}
	if tokens != nil {
		a.tokens = *tokens
	}
	return a
}

type testServer struct {
	engine   *gin.Engine
	module   *stubModule
	creds    *memory.CredentialRepository
	entities *memory.EntityRepository
	states   *cache.MemoryStateStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		engine:   gin.New(),
		module:   &stubModule{},
		creds:    memory.NewCredentialRepository(),
		entities: memory.NewEntityRepository(),
		states:   cache.NewMemoryStateStore(time.Minute),
	}
	t.Cleanup(s.states.Stop)

	reg := modules.NewRegistry()
	reg.Register(s.module)

	ginapi.NewAPI(ginapi.Options{
		Registry:    reg,
		Credentials: s.creds,
		Entities:    s.entities,
		States:      s.states,
	}).RegisterRoutes(s.engine)
	return s
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(ginapi.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// authorize runs the requirements and callback round trip for userID.
func (s *testServer) authorize(t *testing.T, userID string) domain.AuthorizationResult {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/authorize?entityType=stub", userID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var req domain.AuthorizationRequirements
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))

	w = s.do(t, http.MethodPost, "/api/authorize", userID, ginapi.AuthorizeRequest{
		EntityType: "stub",
		Data:       map[string]string{"code": "c1", "state": req.State},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res domain.AuthorizationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ginapi.ErrorResponse {
	t.Helper()
	var e ginapi.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReportsStorage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pingErr := errors.New("server selection timeout")
	newEngine := func(err error) *gin.Engine {
		e := gin.New()
		ginapi.NewAPI(ginapi.Options{
			Registry:    modules.NewRegistry(),
			Credentials: memory.NewCredentialRepository(),
			Entities:    memory.NewEntityRepository(),
			Storage:     pingerFunc(func(context.Context) error { return err }),
		}).RegisterRoutes(e)
		return e
	}

	w := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	newEngine(pingErr).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","storage":"unreachable"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "selection")
}

func TestUserIDRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/modules", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_user", decodeError(t, w).Code)
}

func TestListModules(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/modules", "u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"modules":["stub"]}`, w.Body.String())
}

func TestAuthorizeRequirements(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/authorize?entityType=stub", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var req domain.AuthorizationRequirements
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))
	assert.Equal(t, domain.AuthTypeOAuth2, req.Type)
	assert.NotEmpty(t, req.State)
	assert.Contains(t, req.URL, "state="+req.State)

	w = s.do(t, http.MethodGet, "/api/authorize", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/authorize?entityType=salesforce", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "module_not_found", decodeError(t, w).Code)
}

func TestAuthorizeCallback(t *testing.T) {
	s := newTestServer(t)

	res := s.authorize(t, "u1")
	assert.Equal(t, "stub", res.Type)
	assert.NotEmpty(t, res.EntityID)
	assert.NotEmpty(t, res.CredentialID)

	credential, err := s.creds.GetByID(context.Background(), res.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "at-c1", credential.AccessToken)
	assert.Equal(t, "u1", credential.UserID)

	w := s.do(t, http.MethodGet, "/api/entities", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entities []domain.Entity `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entities, 1)
	assert.Equal(t, res.EntityID, body.Entities[0].ID)

	w = s.do(t, http.MethodGet, "/api/entities", "u2", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Entities)
}

func TestAuthorizeCallback_Errors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/authorize", "u1", map[string]string{"entityType": "stub"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", decodeError(t, w).Code)
	})

	t.Run("unknown state", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodPost, "/api/authorize", "u1", ginapi.AuthorizeRequest{
			EntityType: "stub",
			Data:       map[string]string{"code": "c1", "state": "forged"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_state", decodeError(t, w).Code)
	})

	t.Run("state of another user", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(t, http.MethodGet, "/api/authorize?entityType=stub", "u1", nil)
		var req domain.AuthorizationRequirements
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))

		w = s.do(t, http.MethodPost, "/api/authorize", "u2", ginapi.AuthorizeRequest{
			EntityType: "stub",
			Data:       map[string]string{"code": "c1", "state": req.State},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("exchange rejected", func(t *testing.T) {
		s := newTestServer(t)
		s.module.exchangeErr = errors.New("invalid_grant")
		w := s.do(t, http.MethodGet, "/api/authorize?entityType=stub", "u1", nil)
		var req domain.AuthorizationRequirements
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))

		w = s.do(t, http.MethodPost, "/api/authorize", "u1", ginapi.AuthorizeRequest{
			EntityType: "stub",
			Data:       map[string]string{"code": "c1", "state": req.State},
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "authorization_failed", decodeError(t, w).Code)
	})

	t.Run("provider failure hides details", func(t *testing.T) {
		s := newTestServer(t)
		s.module.detailsErr = &ferrors.FetchError{StatusCode: http.StatusInternalServerError}
		w := s.do(t, http.MethodGet, "/api/authorize?entityType=stub", "u1", nil)
		var req domain.AuthorizationRequirements
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))

		w = s.do(t, http.MethodPost, "/api/authorize", "u1", ginapi.AuthorizeRequest{
			EntityType: "stub",
			Data:       map[string]string{"code": "c1", "state": req.State},
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "the provider request failed", decodeError(t, w).Msg)
	})
}

func TestTestAuthAndDeauthorize(t *testing.T) {
	s := newTestServer(t)
	res := s.authorize(t, "u1")
	path := "/api/entities/stub/" + res.EntityID

	w := s.do(t, http.MethodGet, path+"/test-auth", "u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authorized":true}`, w.Body.String())

	w = s.do(t, http.MethodDelete, path, "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, path, "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := s.creds.GetByID(context.Background(), res.CredentialID)
	assert.ErrorIs(t, err, ferrors.ErrNotFound)

	w = s.do(t, http.MethodGet, path+"/test-auth", "u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authorized":false}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
