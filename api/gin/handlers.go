// Package ginapi exposes module authorization over HTTP.
package ginapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pilab-dev/frigg/cache"
	"github.com/pilab-dev/frigg/domain"
	"github.com/pilab-dev/frigg/log"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/modules"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the API dependencies.
type Options struct {
	Registry    *modules.Registry
	Credentials domain.CredentialRepository
	Entities    domain.EntityRepository
	// States enables state validation of callbacks when set.
	States cache.StateStore
	// Storage is checked by the health endpoint when set.
	Storage Pinger
	Logger  log.Logger
}

// API serves the authorization endpoints.
type API struct {
	registry    *modules.Registry
	credentials domain.CredentialRepository
	entities    domain.EntityRepository
	states      cache.StateStore
	storage     Pinger
	logger      log.Logger
}

// NewAPI initializes the API.
func NewAPI(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &API{
		registry:    opts.Registry,
		credentials: opts.Credentials,
		entities:    opts.Entities,
		states:      opts.States,
		storage:     opts.Storage,
		logger:      logger,
	}
}

// RegisterRoutes registers the routes and the shared middleware.
func (a *API) RegisterRoutes(e *gin.Engine) {
	e.Use(MetricsMiddleware(), SecurityHeadersMiddleware())

	e.GET("/healthz", a.HealthHandler)
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := e.Group("/api", UserIDMiddleware())
	g.GET("/modules", a.ListModulesHandler)
	g.GET("/authorize", a.AuthorizeRequirementsHandler)
	g.POST("/authorize", a.AuthorizeCallbackHandler)
	g.GET("/entities", a.ListEntitiesHandler)
	g.GET("/entities/:entityType/:id/test-auth", a.TestAuthHandler)
	g.DELETE("/entities/:entityType/:id", a.DeauthorizeHandler)
}

// HealthHandler reports 503 while the storage backend is unreachable.
func (a *API) HealthHandler(c *gin.Context) {
	if a.storage != nil {
		ctx := c.Request.Context()
		if err := a.storage.Ping(ctx); err != nil {
			a.logger.Error(ctx, "storage health check failed", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "storage": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) newManager(ctx context.Context, c *gin.Context, moduleName, entityID string) (*manager.Manager, error) {
	module, err := a.registry.Get(moduleName)
	if err != nil {
		return nil, err
	}
	return manager.New(ctx, module, manager.Options{
		UserID:      c.GetString(AuthUserIDKey),
		EntityID:    entityID,
		Credentials: a.credentials,
		Entities:    a.entities,
		States:      a.states,
		Logger:      a.logger,
	})
}

// ListModulesHandler returns the registered module names.
func (a *API) ListModulesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modules": a.registry.Names()})
}

// AuthorizeRequirementsHandler returns where to send the user to authorize
// the module named by the entityType query parameter.
func (a *API) AuthorizeRequirementsHandler(c *gin.Context) {
	entityType := c.Query("entityType")
	if entityType == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Msg: "entityType is required"})
		return
	}

	ctx := c.Request.Context()
	m, err := a.newManager(ctx, c, entityType, "")
	if err != nil {
		a.abort(c, err)
		return
	}
	req, err := m.GetAuthorizationRequirements(ctx)
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// AuthorizeRequest is the body of an authorization callback.
type AuthorizeRequest struct {
	EntityType string            `json:"entityType" binding:"required"`
	Data       map[string]string `json:"data" binding:"required"`
}

// AuthorizeCallbackHandler completes an authorization with the redirect data.
func (a *API) AuthorizeCallbackHandler(c *gin.Context) {
	var body AuthorizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Msg: err.Error()})
		return
	}

	ctx := c.Request.Context()
	m, err := a.newManager(ctx, c, body.EntityType, "")
	if err != nil {
		a.abort(c, err)
		return
	}
	res, err := m.ProcessAuthorizationCallback(ctx, domain.CallbackParams{Data: body.Data})
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListEntitiesHandler returns the user's entities across modules.
func (a *API) ListEntitiesHandler(c *gin.Context) {
	entities, err := manager.GetEntitiesForUser(c.Request.Context(), a.entities, c.Query("entityType"), c.GetString(AuthUserIDKey))
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// TestAuthHandler reports whether the entity's credential still works.
func (a *API) TestAuthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	m, err := a.newManager(ctx, c, c.Param("entityType"), c.Param("id"))
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": m.CheckUserAuthorized() && m.TestAuth(ctx)})
}

// DeauthorizeHandler deletes the entity's credential.
func (a *API) DeauthorizeHandler(c *gin.Context) {
	ctx := c.Request.Context()
	m, err := a.newManager(ctx, c, c.Param("entityType"), c.Param("id"))
	if err != nil {
		a.abort(c, err)
		return
	}
	if err := m.Deauthorize(ctx); err != nil {
		a.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
