package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"go-ledger/internal/config"
	"go-ledger/internal/handlers"
	"go-ledger/internal/middleware"
	"go-ledger/internal/services"
)

// corsMiddleware applies the configured origin allowlist. An empty config
// allows every origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if len(allowedOrigins) == 0 {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept, Authorization, Cache-Control")
			c.Header("Access-Control-Max-Age", "3600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config         *config.Config
	DB             *gorm.DB
	StakingService *services.StakingService
	SwapService    *services.SwapService
	PolicyService  *services.PolicyService
	Hub            *handlers.WebSocketHub
	Logger         *logrus.Logger
}

// SetupRouter builds the gin engine with all routes and middleware.
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(deps.Config.CORS.AllowedOrigins))

	basicHandler := handlers.NewBasicHandler(deps.DB)
	stakingHandler := handlers.NewStakingHandler(deps.StakingService)
	swapHandler := handlers.NewSwapHandler(deps.SwapService)
	authHandler := handlers.NewAdminAuthHandler(deps.Config.Admin, deps.Logger)
	adminHandler := handlers.NewAdminPolicyHandler(deps.PolicyService, deps.SwapService)
	adminAuth := middleware.NewAdminAuthMiddleware(deps.Config.Admin.JWTSecret, deps.Logger)
	ipAllowlist := middleware.NewIPAllowlist(deps.Logger, deps.Config.Admin.AllowedIPs)

	r.GET("/ping", basicHandler.PingHandler)
	r.GET("/health", basicHandler.HealthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		staking := api.Group("/staking")
		{
			staking.POST("/deposit", stakingHandler.DepositHandler)
			staking.POST("/withdraw", stakingHandler.WithdrawHandler)
			staking.POST("/restake", stakingHandler.RestakeHandler)
			staking.POST("/claim", stakingHandler.ClaimHandler)
			staking.GET("/:account", stakingHandler.GetStakeInfoHandler)
		}

		swap := api.Group("/swap")
		{
			swap.POST("/quote", swapHandler.QuoteHandler)
			swap.POST("/execute", swapHandler.ExecuteHandler)
			swap.POST("/route", swapHandler.RouteHandler)
		}

		pools := api.Group("/pools")
		{
			pools.GET("", swapHandler.ListPoolsHandler)
			pools.GET("/:base/:quote/rates", swapHandler.GetRatesHandler)
			pools.POST("/:base/:quote/liquidity", swapHandler.AddLiquidityHandler)
		}

		admin := api.Group("/admin")
		admin.Use(ipAllowlist.Restrict())
		{
			admin.POST("/login", authHandler.LoginHandler)

			protected := admin.Group("")
			protected.Use(adminAuth.RequireAdminAuth())
			{
				protected.GET("/policy", adminHandler.GetPolicyHandler)
				protected.POST("/policy/reward-rate", adminHandler.SetRewardRateHandler)
				protected.POST("/pools", adminHandler.CreatePoolHandler)
			}
		}

		api.GET("/ws", deps.Hub.HandleWebSocket)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Route not found",
			"code":    "NOT_FOUND",
		})
	})

	return r
}
