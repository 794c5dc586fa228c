package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shelf/internal/handler"
	"shelf/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	logger *zap.Logger,
	allowedOrigins []string,
	collectionH *handler.CollectionHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks and metrics
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	collections := v1.Group("/collections")
	collections.POST("", collectionH.Create)
	collections.GET("", collectionH.List)
	collections.GET("/:id", collectionH.GetByID)
	collections.PUT("/:id", collectionH.Update)
	collections.DELETE("/:id", collectionH.Delete)
	collections.PUT("/:id/rules", collectionH.SetRules)
	collections.PUT("/:id/image", collectionH.SetImage)

	// Membership
	collections.GET("/:id/products", collectionH.ListProducts)
	collections.GET("/:id/products/export", collectionH.ExportCSV)
	collections.POST("/:id/products", collectionH.AddProducts)
	collections.DELETE("/:id/products", collectionH.RemoveProducts)
	collections.PUT("/:id/products/:productId/position", collectionH.MoveProduct)

	return r
}
