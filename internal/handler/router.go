package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matchengine/internal/metrics"
)

// BuildInfo is reported by /health and /version.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Service is everything the router serves.
type Service interface {
	MatchAPI
	FeedbackAPI
	EmbeddingAPI
	NotificationAPI
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins      string
	EmbeddingDimensions int
	Build               BuildInfo
	Logger              *zap.Logger
}

// NewRouter wires every endpoint onto a fresh gin engine.
func NewRouter(svc Service, opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	corsConfig := cors.DefaultConfig()
	if origins := splitOrigins(opts.AllowedOrigins); len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "matchengine",
			"version":    opts.Build.Version,
			"build_time": opts.Build.BuildTime,
			"git_commit": opts.Build.GitCommit,
		})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Build)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	matches := NewMatchHandler(svc)
	feedback := NewFeedbackHandler(svc)
	embeddings := NewEmbeddingHandler(svc, opts.EmbeddingDimensions)
	notifications := NewNotificationHandler(svc)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/matches", matches.Match)

		apiV1.PUT("/buyers/:id/criteria", matches.UpdateCriteria)
		apiV1.GET("/buyers/:id/matches", matches.ListMatches)
		apiV1.GET("/buyers/:id/exclusions", matches.Exclusions)
		apiV1.GET("/buyers/:id/runs", matches.Runs)

		apiV1.POST("/feedback", feedback.Submit)
		apiV1.POST("/embeddings/batch", embeddings.BatchUpdate)

		apiV1.GET("/agents/:id/notifications", notifications.List)
	}

	return router
}

// splitOrigins returns nil when every origin is allowed.
func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return nil
		}
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
