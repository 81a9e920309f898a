package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/repos"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type Repos struct {
	User   repos.UserRepo
	Group  repos.GroupRepo
	Member repos.MemberRepo
	Post   repos.PostRepo
	JobRun repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:   repos.NewUserRepo(db, log),
		Group:  repos.NewGroupRepo(db, log),
		Member: repos.NewMemberRepo(db, log),
		Post:   repos.NewPostRepo(db, log),
		JobRun: repos.NewJobRunRepo(db, log),
	}
}
