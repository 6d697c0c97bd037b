// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"labware-service/internal/config"
	"labware-service/internal/handler"
	"labware-service/internal/metrics"
	"labware-service/internal/middleware"
	"labware-service/internal/service"
	"labware-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               handler.HealthChecker
	metrics          *metrics.Metrics
	deviceService    *service.DeviceService
	taskService      *service.TaskService
	discoveryService *service.DiscoveryService
	wsHandler        *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db and metrics may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db handler.HealthChecker,
	metrics *metrics.Metrics,
	deviceService *service.DeviceService,
	taskService *service.TaskService,
	discoveryService *service.DiscoveryService,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		metrics:          metrics,
		deviceService:    deviceService,
		taskService:      taskService,
		discoveryService: discoveryService,
		wsHandler:        wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	quiet := []string{"/health", "/ready", "/live"}
	if r.metrics != nil {
		quiet = append(quiet, r.config.Metrics.Path)
	}
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, quiet...))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.deviceService, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.deviceService, r.logger)
	taskHandler := handler.NewTaskHandler(r.taskService, r.logger)
	journalHandler := handler.NewJournalHandler(r.deviceService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)

	r.addHealthRoutes(router, healthHandler)

	apiV1 := router.Group("/api/v1")
	r.addDeviceRoutes(apiV1, deviceHandler, taskHandler)
	apiV1.GET("/journal", journalHandler.ListJournal)
	r.addDiscoveryRoutes(apiV1, discoveryHandler)

	if r.wsHandler != nil {
		r.addWebSocketRoutes(router, r.wsHandler)
	}
	if r.metrics != nil {
		router.GET(r.config.Metrics.Path, gin.WrapH(r.metrics.Handler()))
	}
	if !r.config.IsProduction() {
		r.addDocumentationRoutes(router)
	}

	r.logger.Info("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addDeviceRoutes sets up device, command and task routes
func (r *Router) addDeviceRoutes(api *gin.RouterGroup, deviceHandler *handler.DeviceHandler, taskHandler *handler.TaskHandler) {
	devices := api.Group("/devices")
	{
		devices.GET("", deviceHandler.ListDevices)

		device := devices.Group("/:name")
		{
			device.GET("", deviceHandler.GetDevice)
			device.POST("/connect", deviceHandler.ConnectDevice)
			device.POST("/disconnect", deviceHandler.DisconnectDevice)
			device.PUT("/simulation", deviceHandler.SetSimulation)

			device.GET("/commands", deviceHandler.ListCommands)
			device.POST("/commands/:command", deviceHandler.ExecuteCommand)

			device.GET("/tasks", taskHandler.ListTasks)
			device.POST("/tasks", taskHandler.StartTask)
			device.DELETE("/tasks/:id", taskHandler.StopTask)
			device.GET("/tasks/:id/results", taskHandler.TaskResults)
		}
	}
}

// addDiscoveryRoutes sets up device discovery routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.DiscoveryHandler) {
	discovery := api.Group("/discovery")
	{
		discovery.GET("/scan", handler.ScanDevices)
		discovery.GET("/serial", handler.ScanSerial)
		discovery.GET("/usb", handler.ScanUSB)
		discovery.GET("/scanners", handler.ListScanners)
	}
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/events", handler.HandleEventConnection)
		ws.GET("/devices/:name", handler.HandleDeviceConnection)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
