package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/repos/jobs"
	"github.com/yungbote/rollup-backend/internal/data/repos/rollup"
	"github.com/yungbote/rollup-backend/internal/data/repos/user"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type UserRepo = user.UserRepo

type GroupRepo = rollup.GroupRepo
type MemberRepo = rollup.MemberRepo
type PostRepo = rollup.PostRepo

type JobRunRepo = jobs.JobRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewUserRepo(db, baseLog)
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return rollup.NewGroupRepo(db, baseLog)
}

func NewMemberRepo(db *gorm.DB, baseLog *logger.Logger) MemberRepo {
	return rollup.NewMemberRepo(db, baseLog)
}

func NewPostRepo(db *gorm.DB, baseLog *logger.Logger) PostRepo {
	return rollup.NewPostRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
