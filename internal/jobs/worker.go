package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/repos"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/envutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Worker polls for runnable job rows and dispatches them to registered
// handlers. Claims go through SKIP LOCKED, so any number of workers across
// processes can poll the same table without double execution.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *Registry
	metrics  *observability.Metrics

	pollEvery    time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	staleRunning time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *Registry, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		metrics:      metrics,
		pollEvery:    envutil.Duration("JOB_POLL_INTERVAL", time.Second),
		maxAttempts:  envutil.Int("JOB_MAX_ATTEMPTS", 5),
		retryDelay:   envutil.Duration("JOB_RETRY_DELAY", 30*time.Second),
		staleRunning: envutil.Duration("JOB_STALE_RUNNING", 2*time.Minute),
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

func (w *Worker) tick(ctx context.Context) {
	job, err := w.repo.ClaimNextRunnable(dbctx.New(ctx), w.maxAttempts, w.retryDelay, w.staleRunning)
	if err != nil {
		w.log.Warn("claim next runnable failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	jc := NewContext(ctx, job, w.repo, w.log)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler registered for job type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", fmt.Errorf("%v", r))
			}
		}()
		h.Run(jc)
	}()

	if !jc.finished() {
		jc.Fail("handler", fmt.Errorf("handler returned without reporting an outcome"))
	}
	if w.metrics != nil {
		w.metrics.ObserveJob(job.JobType, freshStatus(jc), time.Since(start))
	}
}

func freshStatus(jc *Context) string {
	updated, err := jc.repo.GetByID(dbctx.New(jc.ctx), jc.job.ID)
	if err != nil {
		return "unknown"
	}
	return updated.Status
}
