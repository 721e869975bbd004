package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether the backing store can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *AuthHandler,
	recurringHandler *RecurringHandler,
	auth Authenticator,
	ready ReadinessCheck,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), RequestMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)

	// Protected
	rules := r.Group("/recurring")
	rules.Use(AuthMiddleware(auth, logger))
	{
		rules.POST("", recurringHandler.Create)
		rules.GET("", recurringHandler.List)
		rules.GET("/:id", recurringHandler.Get)
		rules.PUT("/:id", recurringHandler.Update)
		rules.DELETE("/:id", recurringHandler.Delete)
		rules.POST("/:id/execute-now", recurringHandler.ExecuteNow)
		rules.GET("/:id/transactions", recurringHandler.GeneratedTransactions)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(addr string) error {
	return r.Engine.Run(addr)
}
