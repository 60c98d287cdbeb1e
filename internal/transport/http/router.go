package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterOptions carries the optional collaborators of the HTTP layer.
type RouterOptions struct {
	Log       *zap.Logger
	Limiter   *RateLimiter
	RateLimit RateLimitConfig
	Feed      *EventFeed
	// AllowOrigins enables CORS for browser clients; empty disables it.
	AllowOrigins []string
}

// NewRouter builds the gin engine: logging, recovery and (when a limiter is
// configured) rate limiting wrap every /api route.
func NewRouter(handler *QuizHandler, opts RouterOptions) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(RequestLogger(log), Recovery(log))
	if len(opts.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length", "X-RateLimit-Remaining", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Limit(opts.RateLimit))
	}
	api.GET("/topics", handler.ListTopics)
	api.GET("/topics/:topicId/subtopics", handler.ListSubtopics)
	api.POST("/sessions", handler.StartSession)
	api.GET("/sessions/:id", handler.GetSession)
	api.GET("/sessions/:id/status", handler.SessionStatus)
	api.POST("/sessions/:id/submit", handler.Submit)
	api.GET("/attempts/:id", handler.GetAttempt)
	api.GET("/stats", handler.Stats)

	if opts.Feed != nil {
		r.GET("/ws/events", gin.WrapF(opts.Feed.ServeWS))
	}
	return r
}
