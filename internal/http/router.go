package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nurpe/contractor-ledger/internal/config"
	"github.com/nurpe/contractor-ledger/internal/http/middleware"
	"github.com/nurpe/contractor-ledger/internal/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, db Pinger, cfg *config.Config) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", cfg.Auth.ProfileHeader, middleware.RequestIDHeader)
	if len(cfg.HTTP.AllowedOrigins) == 1 && cfg.HTTP.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.HTTP.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	handler.Register(router, authMiddleware)
	return router
}
