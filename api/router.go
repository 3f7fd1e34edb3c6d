package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"zinga/audit"
	"zinga/config"
	"zinga/db"
	_ "zinga/docs" // registers the swagger spec
	"zinga/logger"
	"zinga/metrics"
	"zinga/models"
	"zinga/utils"
)

// NewRouter wires every route onto a new gin engine. m and trail may be nil.
func NewRouter(store *db.Store, cfg *config.Config, log *logger.Logger, m *metrics.Metrics, trail *audit.Log) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.RequestLogger(log.Component("http")))
	router.Use(m.Middleware())

	// Admin routes only need a token when the deployment asks for it; the
	// admin UI historically talks to them unauthenticated.
	adminAuth := func(c *gin.Context) { c.Next() }
	if cfg.RequireAdminAuth {
		adminAuth = utils.AuthMiddleware(cfg, true)
	}
	writeLimit := utils.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware()

	apiGroup := router.Group("/api")
	{
		// GET/POST/DELETE /api/data
		apiGroup.GET("/data", func(c *gin.Context) { GetDataHandler(c, store) })
		apiGroup.POST("/data", writeLimit, adminAuth, func(c *gin.Context) { SaveDataHandler(c, store, trail) })
		apiGroup.DELETE("/data", writeLimit, adminAuth, func(c *gin.Context) { ResetDataHandler(c, store, trail) })

		// GET/POST /api/backup
		apiGroup.GET("/backup", func(c *gin.Context) { ListBackupsHandler(c, store) })
		apiGroup.POST("/backup", writeLimit, adminAuth, func(c *gin.Context) { RestoreBackupHandler(c, store, trail) })

		// Storefront checkout
		apiGroup.POST("/payments/confirm", writeLimit, func(c *gin.Context) { ConfirmPaymentsHandler(c, store, trail) })
		apiGroup.POST("/purchases", writeLimit, func(c *gin.Context) { CreatePurchaseHandler(c, store, trail) })

		// Users are only searchable by admins once admin auth is on.
		apiGroup.GET("/catalog/:collection", func(c *gin.Context) {
			if c.Param("collection") == models.CollectionUsers {
				adminAuth(c)
				if c.IsAborted() {
					return
				}
			}
			CatalogHandler(c, store)
		})

		apiGroup.POST("/auth/login", writeLimit, func(c *gin.Context) { LoginHandler(c, store, cfg) })
		apiGroup.GET("/audit", adminAuth, func(c *gin.Context) { AuditHandler(c, trail) })
	}

	router.GET("/healthz", func(c *gin.Context) { HealthHandler(c, store) })
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
