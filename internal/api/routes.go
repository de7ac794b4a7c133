package api

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"meditrack-backend/config"
	"meditrack-backend/internal/middleware"
	"meditrack-backend/internal/services"
	"meditrack-backend/internal/utils"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Dependencies are the services the HTTP API is built from
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB

	Auth      *services.AuthService
	Users     *services.UserService
	OAuth     *services.OAuthService
	Catalog   *services.CatalogService
	Cart      *services.CartService
	Orders    *services.OrderService
	Dashboard *services.DashboardService
	Feed      *services.OrderFeed

	// Nil limiters disable rate limiting
	RateLimiter     *middleware.RateLimiter
	AuthRateLimiter *middleware.RateLimiter
}

// RegisterValidators installs the custom binding tags on gin's validator
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return utils.RegisterValidators(v)
}

// NewRouter builds the gin engine with every route under /api/v1
func NewRouter(deps *Dependencies) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins, cfg.AllowAllOrigins))
	router.Use(middleware.SecurityMiddleware(middleware.DefaultSecurityConfig()))
	if cfg.IsProduction() {
		router.Use(func(c *gin.Context) {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			c.Next()
		})
	}
	if deps.RateLimiter != nil {
		router.Use(middleware.RateLimitMiddleware(deps.RateLimiter, logger))
	}

	health := healthHandler(deps.DB)
	router.GET("/health", health)

	authMiddleware := middleware.NewAuthMiddleware(deps.Auth)
	authHandlers := NewAuthHandlers(deps.Users, deps.Auth, deps.OAuth, logger)
	catalogHandlers := NewCatalogHandlers(deps.Catalog, logger)
	cartHandlers := NewCartHandlers(deps.Cart, logger)
	orderHandlers := NewOrderHandlers(deps.Orders, logger)
	adminHandlers := NewAdminHandlers(deps.Catalog, deps.Orders, deps.Dashboard, deps.Feed, logger)

	v1 := router.Group("/api/v1")
	v1.GET("/health", health)

	auth := v1.Group("/auth")
	{
		public := auth.Group("")
		if deps.AuthRateLimiter != nil {
			public.Use(middleware.RateLimitMiddleware(deps.AuthRateLimiter, logger))
		}
		public.POST("/signup", authHandlers.SignUp)
		public.POST("/login", authHandlers.Login)
		public.POST("/refresh", authHandlers.RefreshToken)
		auth.GET("/google/login", authHandlers.GoogleLogin)
		auth.GET("/google/callback", authHandlers.GoogleCallback)

		signedIn := auth.Group("", authMiddleware.AuthRequired())
		signedIn.POST("/logout", authHandlers.Logout)
		signedIn.GET("/me", authHandlers.Me)
		signedIn.PUT("/profile", authHandlers.UpdateProfile)
	}

	v1.GET("/products", catalogHandlers.ListProducts)
	v1.GET("/products/:slug", catalogHandlers.GetProduct)
	v1.GET("/categories", catalogHandlers.ListCategories)

	cart := v1.Group("/cart", authMiddleware.AuthRequired())
	{
		cart.GET("", cartHandlers.GetCart)
		cart.POST("/items", cartHandlers.AddItem)
		cart.PUT("/items/:id", cartHandlers.UpdateItem)
		cart.DELETE("/items/:id", cartHandlers.RemoveItem)
		cart.DELETE("", cartHandlers.ClearCart)
	}

	orders := v1.Group("/orders", authMiddleware.AuthRequired())
	{
		orders.POST("", orderHandlers.Checkout)
		orders.GET("", orderHandlers.ListOrders)
		orders.GET("/:id", orderHandlers.GetOrder)
	}

	admin := v1.Group("/admin", authMiddleware.AuthRequired(), authMiddleware.AdminRequired())
	{
		admin.GET("/dashboard", adminHandlers.Dashboard)
		admin.GET("/products/low-stock", adminHandlers.LowStockProducts)
		admin.POST("/products", adminHandlers.CreateProduct)
		admin.PUT("/products/:id", adminHandlers.UpdateProduct)
		admin.DELETE("/products/:id", adminHandlers.DeleteProduct)
		admin.POST("/categories", adminHandlers.CreateCategory)
		admin.GET("/orders", adminHandlers.ListOrders)
		admin.GET("/orders/:id", adminHandlers.GetOrder)
		admin.PUT("/orders/:id/status", adminHandlers.UpdateOrderStatus)
		admin.PUT("/orders/:id/payment-status", adminHandlers.UpdatePaymentStatus)
		admin.GET("/ws", adminHandlers.OrderFeed)
	}

	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Route not found")
	})

	return router, nil
}

func healthHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":  status,
			"message": "MediTrack API is running",
			"version": Version,
		})
	}
}
