package app

import (
	"github.com/yungbote/rollup-backend/internal/handlers"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type Handlers struct {
	Auth   *handlers.AuthHandler
	Group  *handlers.GroupHandler
	Member *handlers.MemberHandler
	Post   *handlers.PostHandler
	Stats  *handlers.StatsHandler
	Jobs   *handlers.JobsHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:   handlers.NewAuthHandler(services.Auth),
		Group:  handlers.NewGroupHandler(services.Group),
		Member: handlers.NewMemberHandler(services.Member),
		Post:   handlers.NewPostHandler(services.Post),
		Stats:  handlers.NewStatsHandler(services.Stats),
		Jobs:   handlers.NewJobsHandler(services.Job),
	}
}
