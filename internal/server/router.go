package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/rollup-backend/internal/handlers"
	"github.com/yungbote/rollup-backend/internal/middleware"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	ServiceName    string
	AuthHandler    *handlers.AuthHandler
	GroupHandler   *handlers.GroupHandler
	MemberHandler  *handlers.MemberHandler
	PostHandler    *handlers.PostHandler
	StatsHandler   *handlers.StatsHandler
	JobsHandler    *handlers.JobsHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", cfg.Metrics.Handler())
	}

	api := router.Group("/api/v1")
	{
		api.POST("/auth/register", cfg.AuthHandler.Register)
		api.POST("/auth/login", cfg.AuthHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	{
		protected.POST("/groups", cfg.GroupHandler.Create)
		protected.GET("/groups", cfg.GroupHandler.List)
		protected.GET("/groups/:id", cfg.GroupHandler.Get)
		protected.PATCH("/groups/:id", cfg.GroupHandler.Rename)
		protected.DELETE("/groups/:id", cfg.GroupHandler.Delete)
		protected.POST("/groups/:id/recompute", cfg.GroupHandler.Recompute)
		protected.GET("/groups/:id/stats", cfg.StatsHandler.GroupStats)
		protected.GET("/groups/:id/members", cfg.MemberHandler.ListByGroup)
		protected.GET("/groups/:id/posts", cfg.PostHandler.ListByGroup)

		protected.POST("/members", cfg.MemberHandler.Add)
		protected.GET("/members/:id", cfg.MemberHandler.Get)
		protected.PATCH("/members/:id", cfg.MemberHandler.Update)
		protected.POST("/members/:id/points", cfg.MemberHandler.AddPoints)
		protected.POST("/members/:id/move", cfg.MemberHandler.Move)
		protected.POST("/members/:id/restore", cfg.MemberHandler.Restore)
		protected.DELETE("/members/:id", cfg.MemberHandler.Remove)

		protected.POST("/posts", cfg.PostHandler.Create)
		protected.GET("/posts/:id", cfg.PostHandler.Get)
		protected.POST("/posts/:id/visibility", cfg.PostHandler.SetVisible)
		protected.DELETE("/posts/:id", cfg.PostHandler.Delete)

		protected.GET("/jobs/:id", cfg.JobsHandler.Get)
	}

	return router
}

func allowedOrigins() []string {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
