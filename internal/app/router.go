package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/server"
)

func wireRouter(cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AuthHandler:    handlers.Auth,
		GroupHandler:   handlers.Group,
		MemberHandler:  handlers.Member,
		PostHandler:    handlers.Post,
		StatsHandler:   handlers.Stats,
		JobsHandler:    handlers.Jobs,
		AuthMiddleware: middleware.Auth,
		Metrics:        metrics,
	})
}
