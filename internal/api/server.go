package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nexus/internal/chat"
	"nexus/internal/ingest"
	"nexus/internal/logging"
	"nexus/internal/search"
	"nexus/internal/services"
	"nexus/internal/store"
)

const requestIDHeader = "X-Request-ID"

// StatusFunc reports daemon state for /api/status.
type StatusFunc func(ctx context.Context) DaemonStatus

// Options wires the router to its collaborators. Status may be nil.
type Options struct {
	Store  *store.Store
	Ingest *ingest.Service
	Search *search.Service
	Chat   *chat.Service
	Status StatusFunc
	Token  string
	Logger *slog.Logger
}

type handler struct {
	store  *store.Store
	ingest *ingest.Service
	search *search.Service
	chat   *chat.Service
	status StatusFunc
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the /api routes.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger := logging.NewComponentLogger(opts.Logger, "api")
	h := &handler{
		store:  opts.Store,
		ingest: opts.Ingest,
		search: opts.Search,
		chat:   opts.Chat,
		status: opts.Status,
		logger: logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/api/health", h.health)

	api := r.Group("/api")
	api.Use(authMiddleware(opts.Token))
	{
		api.GET("/health/db", h.healthDB)
		api.GET("/status", h.daemonStatus)

		api.POST("/media/process/url", h.processURL)
		api.POST("/media/process/upload", h.processUpload)
		api.GET("/media", h.listMedia)
		api.GET("/media/:id", h.getMedia)
		api.DELETE("/media/:id", h.deleteMedia)
		api.GET("/media/:id/job", h.mediaJob)
		api.POST("/media/:id/retry", h.retryMedia)
		api.GET("/jobs/:id", h.getJob)

		api.POST("/search", h.semanticSearch)
		api.GET("/search/tags/:tag", h.searchByTag)

		api.POST("/chat", h.askChat)
		api.GET("/chat/history", h.chatHistory)
		api.DELETE("/chat/history", h.clearChat)

		api.GET("/subscriptions", h.listSubscriptions)
		api.POST("/subscriptions", h.createSubscription)
		api.POST("/subscriptions/import", h.importSubscriptions)
		api.GET("/subscriptions/:id", h.getSubscription)
		api.PATCH("/subscriptions/:id", h.updateSubscription)
		api.DELETE("/subscriptions/:id", h.deleteSubscription)
		api.POST("/subscriptions/:id/sync", h.syncSubscription)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "nexus",
			"status":  "running",
		})
	})
	return r
}

// requestLogger tags each request with an ID and logs its outcome.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "http_request"),
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, logging.String("error", c.Errors.String()))
		}
		log := logging.WithContext(c.Request.Context(), logger)
		if status >= http.StatusInternalServerError {
			log.Error("request failed", logging.Args(attrs...)...)
			return
		}
		log.Debug("request served", logging.Args(attrs...)...)
	}
}

// authMiddleware requires "Authorization: Bearer <token>" when token is set.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// respondError maps classified service errors onto HTTP status codes.
func (h *handler) respondError(c *gin.Context, err error) {
	details := services.Details(err)
	status := http.StatusInternalServerError
	switch details.Marker {
	case services.ErrValidation:
		status = http.StatusBadRequest
	case services.ErrNotFound:
		status = http.StatusNotFound
	case services.ErrConflict:
		status = http.StatusConflict
	}
	_ = c.Error(err)
	body := ErrorResponse{Error: http.StatusText(status), Detail: details.Message}
	if status == http.StatusInternalServerError {
		body.Detail = ""
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *handler) badRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: http.StatusText(http.StatusBadRequest), Detail: detail})
}

func (h *handler) notFound(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: http.StatusText(http.StatusNotFound), Detail: what + " not found"})
}
