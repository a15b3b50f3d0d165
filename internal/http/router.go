// Package httpapi wires the HTTP transport (Gin) to the gateway services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, and rate limiting.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/barrier-gateway/docs"
	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/http/handlers"
	"github.com/tbourn/barrier-gateway/internal/http/middleware"
)

// maxBodyBytes bounds request bodies. Camera posts may inline up to three
// base64 images.
const maxBodyBytes = 16 << 20

// Deps are the services the routes are bound to.
type Deps struct {
	Ingest       handlers.IngestService
	Barriers     handlers.BarrierService
	Whitelist    handlers.WhitelistService
	Transactions handlers.TransactionService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with plate/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per operator/IP; /health and /metrics exempt)
//  8. CORS and Security headers
//  9. gzip
//
// When cfg.Auth is set, the API group additionally requires HTTP Basic auth.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-API-Key"},
		MaskQueryParams: []string{"plate"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOperatorOrIP()).
		Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		Revalidate:   []string{apiPath(cfg.APIBasePath, "/transactions")},
	}))

	// Whitelist and transaction listings compress well; /metrics negotiates its own.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Ingest, deps.Barriers, deps.Whitelist, deps.Transactions)

	api := groupWithPrefix(r, cfg.APIBasePath)
	if cfg.Auth.Enabled() {
		api.Use(gin.BasicAuth(gin.Accounts{cfg.Auth.Username: cfg.Auth.Password}))
	}
	{
		// Camera ingestion
		api.POST("/camera", h.PostCamera)

		// Barriers
		api.GET("/barriers", h.ListBarriers)
		api.POST("/barriers/:name/pulse", h.PulseBarrier)
		api.PUT("/barriers/:name/enabled", h.SetBarrierEnabled)

		// Whitelist
		api.GET("/whitelist", h.GetWhitelist)
		api.POST("/whitelist/refresh", h.RefreshWhitelist)

		// Ledger
		api.GET("/transactions", h.ListTransactions)
		api.GET("/transactions/:id", h.GetTransaction)
	}
}

// useCORS installs gin-contrib/cors. With no configured origins every origin
// is allowed (without credentials); otherwise the allowlist is echoed.
func useCORS(r *gin.Engine, cc config.CORSConfig) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(cc.AllowedOrigins))
	for _, o := range cc.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	base.AllowOrigins = cc.AllowedOrigins
	r.Use(cors.New(base))
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Oversized bodies make downstream reads fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// apiPath joins the API prefix and a route the way groupWithPrefix mounts it.
func apiPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return strings.TrimSuffix(prefix, "/") + p
}
