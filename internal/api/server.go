package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyforge/internal/api/handlers"
	"keyforge/internal/api/middleware"
	"keyforge/internal/config"
	"keyforge/internal/service"
	"keyforge/internal/store"
)

type Server struct {
	Router *gin.Engine
	DB     *pgxpool.Pool
	Config config.Config

	LicenceManager *service.LicenceManager
	Analytics      service.Analytics
	LicenceStore   store.LicenceStore
	ProductStore   store.ProductStore
	ClientStore    store.ClientStore
}

func NewServer(cfg config.Config, db *pgxpool.Pool, manager *service.LicenceManager, analytics service.Analytics, ls store.LicenceStore, ps store.ProductStore, cs store.ClientStore) *Server {
	r := gin.Default()

	if len(cfg.TrustedProxies) > 0 {
		r.SetTrustedProxies(cfg.TrustedProxies)
	}

	server := &Server{
		Router:         r,
		DB:             db,
		Config:         cfg,
		LicenceManager: manager,
		Analytics:      analytics,
		LicenceStore:   ls,
		ProductStore:   ps,
		ClientStore:    cs,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	adminRateLimiter := middleware.RateLimitMiddleware(s.Config.RateLimitAdmin)
	verifyRateLimiter := middleware.RateLimitMiddleware(s.Config.RateLimitVerify)

	// Public routes
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Licence Key Public Endpoints
	s.Router.GET("/verify", verifyRateLimiter, handlers.VerifyLicenceHandler(s.LicenceManager, s.Config.ResponseSigningPrivateKey))

	// Protected routes
	authorized := s.Router.Group("/")
	authorized.Use(adminRateLimiter)
	authorized.Use(middleware.JWTAuth(s.Config))
	{
		// Licence Lifecycle
		authorized.POST("/admin/licences", handlers.CreateLicenceHandler(s.LicenceManager))
		authorized.GET("/admin/licences", handlers.ListLicencesHandler(s.LicenceStore))
		authorized.GET("/admin/licences/:id", handlers.GetLicenceHandler(s.LicenceStore))
		authorized.GET("/admin/licences/refid/:refid", handlers.GetLicenceByRefidHandler(s.LicenceManager))
		authorized.POST("/admin/licences/:id/activate", handlers.ActivateLicenceHandler(s.LicenceManager))
		authorized.DELETE("/admin/licences/:id", handlers.RevokeLicenceHandler(s.LicenceManager))
		authorized.DELETE("/admin/licences/:id/purge", handlers.DeleteLicenceHandler(s.LicenceStore))
		authorized.POST("/admin/licences/sweep-expired", handlers.SweepExpiredHandler(s.LicenceManager))
		authorized.POST("/admin/licences/notify-expiring", handlers.NotifyExpiringHandler(s.LicenceManager))

		// Product Management
		authorized.GET("/admin/products", handlers.ListProductsHandler(s.ProductStore))
		authorized.POST("/admin/products", handlers.CreateProductHandler(s.ProductStore))
		authorized.GET("/admin/products/:id", handlers.GetProductHandler(s.ProductStore))
		authorized.DELETE("/admin/products/:id", handlers.DeleteProductHandler(s.ProductStore))

		// Client Management
		authorized.GET("/admin/clients", handlers.ListClientsHandler(s.ClientStore))
		authorized.POST("/admin/clients", handlers.CreateClientHandler(s.ClientStore))
		authorized.GET("/admin/clients/:id", handlers.GetClientHandler(s.ClientStore))
		authorized.DELETE("/admin/clients/:id", handlers.DeleteClientHandler(s.ClientStore))

		// Analytics
		authorized.GET("/admin/analytics/minting", handlers.MintingStatsHandler(s.Analytics))
		authorized.GET("/admin/analytics/forecast", handlers.ExpirationForecastHandler(s.Analytics))
		authorized.GET("/admin/analytics/popularity", handlers.ProductPopularityHandler(s.Analytics))
		authorized.GET("/admin/analytics/trends/minting", handlers.MintingTrendsHandler(s.Analytics))
		authorized.GET("/admin/analytics/trends/activation", handlers.ActivationTrendsHandler(s.Analytics))
	}
}
