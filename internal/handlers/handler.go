package handlers

import (
	"errors"
	"net/http"

	"mount_modeling/internal/alignment"
	"mount_modeling/internal/logger"
	"mount_modeling/internal/mount"
	"mount_modeling/internal/repository"
	"mount_modeling/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	metrics  http.Handler
}

// NewHandler constructs a new HTTP handler with dependencies. A nil metrics
// handler leaves /metrics unregistered.
func NewHandler(services *service.Service, log *logger.Logger, metrics http.Handler) *Handler {
	return &Handler{services: services, log: log.Named("http"), metrics: metrics}
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
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerMountRoutes(api)
		h.registerModelingRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerMountRoutes(api *gin.RouterGroup) {
	m := api.Group("/mount")
	{
		m.GET("/status", h.getStatus)
		m.GET("/alignment", h.getAlignment)
		m.DELETE("/alignment/:index", h.deleteAlignmentPoint)
		m.POST("/model/:name/load", h.loadModel)
	}
	api.GET("/imaging/status", h.getImagingStatus)
}

func (h *Handler) registerModelingRoutes(api *gin.RouterGroup) {
	m := api.Group("/modeling")
	{
		// Body example: {"kind":"Base","points":[{"azimuth":120,"altitude":45,"active":true,"solve":true}]}
		m.POST("/runs", h.startRun)
		m.GET("/runs", h.listRuns)
		m.GET("/runs/:id", h.getRun)
		m.POST("/batch", h.runBatch)
		m.POST("/cancel", h.cancelRun)
		m.GET("/progress", h.getProgress)
		m.GET("/log", h.getModelLog)
		m.GET("/points", h.getTargetPoints)
		m.PUT("/points", h.putTargetPoints)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps service errors to HTTP codes. Client mistakes keep the
// error text, anything else is reported as an internal failure.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrRunInProgress), errors.Is(err, service.ErrNoRunInProgress):
		return http.StatusConflict, true
	case service.IsPreconditionError(err), service.IsValidationError(err), errors.Is(err, service.ErrInvalidModelName):
		return http.StatusBadRequest, true
	case errors.Is(err, alignment.ErrIndexOutOfRange), errors.Is(err, repository.ErrRunNotFound),
		errors.Is(err, service.ErrModelNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, mount.ErrNotConnected), errors.Is(err, mount.ErrReplyTimeout), errors.Is(err, mount.ErrQueueCleared):
		return http.StatusServiceUnavailable, true
	}
	return http.StatusInternalServerError, false
}

// respondServiceError writes the mapped status. Internal errors are logged
// under logKey and hidden behind userMsg.
func (h *Handler) respondServiceError(c *gin.Context, err error, userMsg, logKey string, kv ...interface{}) {
	code, expose := statusFor(err)
	if !expose {
		h.logAndJSONError(c, code, userMsg, logKey, err, kv...)
		return
	}
	if code >= http.StatusInternalServerError || code == http.StatusServiceUnavailable {
		h.log.Warnw(logKey, append([]interface{}{"err", err}, kv...)...)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
