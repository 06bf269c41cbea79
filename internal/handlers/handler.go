package handlers

import (
	"net/http"

	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	metricsPath    string
	metricsHandler http.Handler
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// WithMetrics exposes handler at path, outside the authenticated API.
func (h *Handler) WithMetrics(path string, handler http.Handler) *Handler {
	h.metricsPath = path
	h.metricsHandler = handler
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	if h.metricsHandler != nil && h.metricsPath != "" {
		router.GET(h.metricsPath, gin.WrapH(h.metricsHandler))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware)
	{
		h.registerDeviceRoutes(api)
		h.registerPollRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	api.GET("/devices", h.getDevices)
	api.GET("/devices/:serial", h.getDevice)
	api.GET("/capability", h.getCapability)
}

func (h *Handler) registerPollRoutes(api *gin.RouterGroup) {
	poll := api.Group("/poll")
	{
		poll.POST("", h.triggerPoll)
		poll.GET("/status", h.pollStatus)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
