package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	ginapi "github.com/pilab-dev/frigg/api/gin"
	"github.com/pilab-dev/frigg/config"
	"github.com/pilab-dev/frigg/log"
)

// NewRouter builds the gin engine with recovery, request logging, tracing
// and the API routes.
func NewRouter(serviceName string, appLogger log.Logger, api *ginapi.API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			appLogger.Error(c.Request.Context(), c.Errors.String(), c.Errors.Last().Err, fields)
		} else {
			appLogger.Info(c.Request.Context(), "HTTP Request", fields)
		}
	})

	router.Use(otelgin.Middleware(serviceName))

	api.RegisterRoutes(router)
	return router
}

// NewHTTPServer creates the HTTP server serving the API on cfg.HTTPPort.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, api *ginapi.API) *http.Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	return &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: NewRouter(cfg.OtelServiceName, appLogger, api),
		// provider calls made during a callback share the write deadline
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
