package handlers

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/SAP-F-2025/quiro-companion/internal/utils"
	"github.com/SAP-F-2025/quiro-companion/internal/validator"
	"github.com/SAP-F-2025/quiro-companion/internal/ws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	wsHandler      *WSHandler
	registry       *services.SessionRegistry
	allowedOrigins []string
	logger         utils.Logger
	recovery       *services.ServiceLogger
}

func NewHandlerManager(
	registry *services.SessionRegistry,
	hub *ws.Hub,
	validator *validator.Validator,
	logger utils.Logger,
	allowedOrigins []string,
) *HandlerManager {
	recovery := services.NewServiceLogger(utils.ToSlogLogger(logger), services.LogConfig{
		Service:   "quiro-companion",
		Component: "http",
	})
	return &HandlerManager{
		sessionHandler: NewSessionHandler(registry, validator, logger),
		wsHandler:      NewWSHandler(hub, registry, logger, allowedOrigins),
		registry:       registry,
		allowedOrigins: allowedOrigins,
		logger:         logger,
		recovery:       recovery,
	}
}

// NewRouter builds the engine with logging, recovery and CORS middleware and
// all routes.
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(utils.LoggerMiddleware(hm.logger))
	router.Use(utils.ContextLogger(hm.logger))
	router.Use(gin.CustomRecovery(hm.recoverPanic))
	router.Use(cors.New(corsConfig(hm.allowedOrigins)))

	hm.SetupRoutes(router)
	return router
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.CreateSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.DELETE("/:id", hm.sessionHandler.DeleteSession)

			// Player actions
			sessions.POST("/:id/scan", hm.sessionHandler.StartScan)
			sessions.PUT("/:id/typed-id", hm.sessionHandler.SetTypedID)
			sessions.POST("/:id/search", hm.sessionHandler.Search)
			sessions.POST("/:id/cancel", hm.sessionHandler.Cancel)
			sessions.POST("/:id/give-up", hm.sessionHandler.GiveUp)
			sessions.POST("/:id/reset", hm.sessionHandler.PlayAgain)

			// Camera feed
			sessions.POST("/:id/camera/grant", hm.sessionHandler.GrantCamera)
			sessions.POST("/:id/camera/deny", hm.sessionHandler.DenyCamera)
			sessions.POST("/:id/frames", hm.sessionHandler.PushFrame)

			sessions.GET("/:id/ws", hm.wsHandler.HandleWebSocket)
		}
	}
}

func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "quiro-companion",
		"sessions": hm.registry.Len(),
	})
}

// recoverPanic logs a handler panic with its stack and answers 500.
func (hm *HandlerManager) recoverPanic(c *gin.Context, recovered any) {
	ctx := services.WithRequestID(c.Request.Context(), c.GetHeader(utils.RequestIDHeader))
	hm.recovery.LogRecovery(ctx, c.FullPath(), c.Param("id"), recovered, debug.Stack())
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Message: "Internal server error",
		Code:    "INTERNAL",
	})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
