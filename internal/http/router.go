// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, body limits and idempotency.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	_ "github.com/tbourn/chat-assistant-backend/docs"
	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/config"
	"github.com/tbourn/chat-assistant-backend/internal/domain"
	"github.com/tbourn/chat-assistant-backend/internal/http/handlers"
	"github.com/tbourn/chat-assistant-backend/internal/http/middleware"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
	"github.com/tbourn/chat-assistant-backend/internal/services"
)

// jsonBodyLimit caps non-upload request bodies.
const jsonBodyLimit = 1 << 20

// uploadBatchFactor is how many max-size files one upload request may carry.
const uploadBatchFactor = 4

// Deps are the storage and upstream handles the services are built on.
type Deps struct {
	Store   services.ChatStore
	Assets  *repo.AssetFiles
	DB      *gorm.DB
	Gateway completion.Gateway
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It builds the services from deps and cfg, configures observability
// (tracing, metrics), compression, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the versioned public API under
// cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Gzip (except /metrics and stored uploads)
//  7. CORS
//
// Per group: security headers on the API and /uploads, body limits sized
// for JSON or multipart, and idempotency key validation on the send route.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/uploads/"})))

	// 7) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
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
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs (the CSP on the API group would block the UI's scripts)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := buildHandlers(deps, cfg)
	secure := middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	})

	// Stored uploads
	r.GET("/uploads/:name", secure, h.GetAsset)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	api.Use(secure)
	{
		jsonAPI := api.Group("", limitBody(jsonBodyLimit))

		// Chats
		jsonAPI.POST("/chats", h.CreateChat)
		jsonAPI.GET("/chats", h.ListChats)
		jsonAPI.GET("/chats/:id", h.GetChat)
		jsonAPI.PUT("/chats/:id/settings", h.UpdateSettings)
		jsonAPI.POST("/chats/:id/clear", h.ClearChat)
		jsonAPI.DELETE("/chats/:id", h.DeleteChat)

		// Messages
		jsonAPI.GET("/chats/:id/messages", h.ListMessages)
		jsonAPI.POST("/chats/:id/messages",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}),
			h.PostMessage,
		)
		jsonAPI.PUT("/chats/:id/messages/:index", h.EditMessage)

		// Uploads
		uploads := api.Group("", limitBody(uploadBatchFactor*cfg.Upload.MaxBytes+jsonBodyLimit))
		uploads.POST("/chats/:id/upload", h.UploadToChat)
		uploads.POST("/upload", h.Upload)
	}
}

// buildHandlers performs dependency injection: services ← store/db/gateway.
func buildHandlers(deps Deps, cfg config.Config) *handlers.Handlers {
	log := services.NewMessageLog(deps.Store)

	chatSvc := services.NewChatService(log, domain.ChatDefaults{
		Title:        cfg.Chat.DefaultTitle,
		SystemPrompt: cfg.Chat.DefaultSystemPrompt,
		Model:        cfg.Chat.DefaultModel,
	})
	chatSvc.DB = deps.DB
	if deps.Assets != nil {
		chatSvc.Files = deps.Assets
	}
	chatSvc.GCAssets = cfg.Upload.GCOnDelete

	msgSvc := &services.MessageService{
		Log:            log,
		Gateway:        deps.Gateway,
		DB:             deps.DB,
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxPromptRunes: cfg.Chat.MaxPromptRunes,
		FormatReplies:  cfg.Chat.FormatReplies,
		AutoTitle:      cfg.Chat.AutoTitle,
		DefaultTitle:   cfg.Chat.DefaultTitle,
		TitleLocale:    language.English,
		TitleMaxLen:    chatSvc.TitleMaxLen,
	}

	uploadSvc := &services.UploadService{
		Log:                log,
		Gateway:            deps.Gateway,
		Files:              deps.Assets,
		DB:                 deps.DB,
		VisionSystemPrompt: cfg.Upload.VisionSystemPrompt,
		VisionUserPrompt:   cfg.Upload.VisionUserPrompt,
		VisionMaxTokens:    cfg.Upload.VisionMaxTokens,
		Concurrency:        cfg.Upload.Concurrency,
		MaxFileBytes:       cfg.Upload.MaxBytes,
	}

	h := handlers.New(chatSvc, msgSvc, uploadSvc, deps.Assets)
	h.MaxPromptRunes = cfg.Chat.MaxPromptRunes
	return h
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Requests exceeding the cap will cause
// downstream body reads to error.
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
