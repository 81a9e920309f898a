package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/repos"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type JobService interface {
	GetByIDForUser(ctx context.Context, userID, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db      *gorm.DB
	log     *logger.Logger
	jobRepo repos.JobRunRepo
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, jobRepo repos.JobRunRepo) JobService {
	return &jobService{
		db:      db,
		log:     baseLog.With("service", "JobService"),
		jobRepo: jobRepo,
	}
}

func (s *jobService) GetByIDForUser(ctx context.Context, userID, jobID uuid.UUID) (*types.JobRun, error) {
	const op = "JobService.GetByIDForUser"
	job, err := s.jobRepo.GetByID(dbctx.New(ctx), jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerUserID != userID {
		return nil, types.NewError(types.CodeNotFound, op, "job not found", nil)
	}
	return job, nil
}
