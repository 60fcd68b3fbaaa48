package router

import (
	"github.com/gin-gonic/gin"

	"certintake/internal/handler"
	"certintake/internal/middleware"
	"certintake/internal/service"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	authSvc service.AuthService,
	healthH *handler.HealthHandler,
	shipmentH *handler.ShipmentHandler,
	intakeH *handler.IntakeHandler,
	corsOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	// Protected routes - require valid JWT
	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(authSvc))

	v1.POST("/intake", middleware.RequireRole(service.RoleService, service.RoleOperator), intakeH.Process)

	shipments := v1.Group("/shipments/:shipment_id/documents")
	shipments.GET("", shipmentH.ListDocuments)
	shipments.GET("/export", shipmentH.ExportCSV)
	shipments.POST("", middleware.RequireRole(service.RoleOperator), shipmentH.UploadDocuments)

	return r
}
