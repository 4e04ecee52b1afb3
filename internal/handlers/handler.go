package handlers

import (
	"net/http"

	"github.com/lukezbihlyj/icomfort-go/internal/logger"
	"github.com/lukezbihlyj/icomfort-go/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	metrics  http.Handler
	hub      *wsHub
}

// NewHandler constructs the HTTP handler. metrics is the promhttp handler
// for the daemon's registry; nil disables the endpoint.
func NewHandler(services *service.Service, log *logger.Logger, metrics http.Handler) *Handler {
	return &Handler{
		services: services,
		log:      log,
		metrics:  metrics,
		hub:      newWSHub(log),
	}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/sign-in", h.signIn)
	}

	api := router.Group("/api/v1", h.tokenMiddleware)
	{
		api.GET("/systems", h.getSystems)
		api.GET("/zones", h.getZones)
		api.GET("/zones/:id", h.getZone)
		api.POST("/zones/:id/mode", h.setMode)
		api.POST("/zones/:id/temperature", h.setTemperature)
		api.POST("/zones/:id/fan", h.setFan)
		api.GET("/logs", h.getLogs)
	}

	// WebSocket zone-update stream, same port.
	router.GET("/ws", h.wsConnect)

	return router
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
