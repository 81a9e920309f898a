package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/cache"
	"github.com/yungbote/rollup-backend/internal/denorm"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/jobs"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/services"
)

type Services struct {
	Auth   services.AuthService
	Group  services.GroupService
	Member services.MemberService
	Post   services.PostService
	Stats  services.StatsService
	Job    services.JobService

	JobWorker *jobs.Worker
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	recomputer *denorm.Recomputer,
	stats cache.StatsCache,
	metrics *observability.Metrics,
) Services {
	log.Info("Wiring services...")

	auth := services.NewAuthService(db, log, reposet.User, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	group := services.NewGroupService(db, log, reposet.Group, reposet.JobRun, recomputer, stats, metrics)
	member := services.NewMemberService(db, log, reposet.Member, reposet.Group, stats)
	post := services.NewPostService(db, log, reposet.Post, reposet.Group, reposet.Member, stats)
	statsSvc := services.NewStatsService(db, log, reposet.Group, stats)
	job := services.NewJobService(db, log, reposet.JobRun)

	registry := jobs.NewRegistry()
	registry.Register(
		types.JobTypeGroupRecompute,
		jobs.NewGroupRecomputeHandler(log, group),
	)
	worker := jobs.NewWorker(db, log, reposet.JobRun, registry, metrics)

	return Services{
		Auth:      auth,
		Group:     group,
		Member:    member,
		Post:      post,
		Stats:     statsSvc,
		Job:       job,
		JobWorker: worker,
	}
}
