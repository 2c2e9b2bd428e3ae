package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"faultline/config"
	"faultline/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const preflightMaxAge = 24 * time.Hour

// NewRouter builds the HTTP surface over svc.
func NewRouter(svc *service.Services, settings *config.Config) (*gin.Engine, error) {
	h, err := NewHandler(svc, settings)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	// Cleanup allowlisting must see the socket address, not a forwarded one.
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	r.Use(requestID(), accessLog(), observe(), recovery())

	api := r.Group("/api")
	{
		ingest := api.Group("/error-log", corsFor(http.MethodPost))
		ingest.POST("", h.LogError)
		ingest.OPTIONS("", preflight(http.MethodPost))

		errs := api.Group("/errors")
		{
			stats := errs.Group("/stats", corsFor(http.MethodGet))
			stats.GET("", h.GetStats)
			stats.OPTIONS("", preflight(http.MethodGet))

			errs.POST("/cleanup", h.Cleanup)
		}

		api.GET("/health", h.HealthCheck)
		api.HEAD("/health", h.HealthCheck)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Not found")
	})
	return r, nil
}

// corsFor allows any origin to call method on a route group.
func corsFor(method string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{method, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          preflightMaxAge,
	})
}

// preflight answers OPTIONS requests that the cors middleware lets through,
// which are those without an Origin header.
func preflight(method string) gin.HandlerFunc {
	methods := strings.Join([]string{method, http.MethodOptions}, ", ")
	maxAge := strconv.Itoa(int(preflightMaxAge / time.Second))
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Max-Age", maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
