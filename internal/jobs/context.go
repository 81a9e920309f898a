package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yungbote/rollup-backend/internal/data/repos"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Context carries one claimed job run through its handler and owns the
// status transitions back to storage.
type Context struct {
	ctx  context.Context
	job  *types.JobRun
	repo repos.JobRunRepo
	log  *logger.Logger
	done bool
}

func NewContext(ctx context.Context, job *types.JobRun, repo repos.JobRunRepo, log *logger.Logger) *Context {
	return &Context{ctx: ctx, job: job, repo: repo, log: log}
}

func (jc *Context) Ctx() context.Context { return jc.ctx }

func (jc *Context) Job() *types.JobRun { return jc.job }

// Payload unmarshals the run's payload into out. An empty payload is fine.
func (jc *Context) Payload(out any) error {
	if len(jc.job.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(jc.job.Payload, out)
}

func (jc *Context) Heartbeat() {
	if err := jc.repo.Heartbeat(dbctx.New(jc.ctx), jc.job.ID); err != nil {
		jc.log.Warn("job heartbeat failed", "job_id", jc.job.ID, "error", err)
	}
}

// Succeed marks the run succeeded and stores its result document.
func (jc *Context) Succeed(result any) {
	jc.done = true
	updates := map[string]interface{}{
		"status": types.JobStatusSucceeded,
		"error":  "",
	}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			updates["result"] = raw
		} else {
			jc.log.Warn("job result not serializable", "job_id", jc.job.ID, "error", err)
		}
	}
	if err := jc.repo.UpdateFields(dbctx.New(jc.ctx), jc.job.ID, updates); err != nil {
		jc.log.Error("job success transition failed", "job_id", jc.job.ID, "error", err)
	}
}

// Fail marks the run failed and records the stage and cause. The claim
// query retries it after the backoff window until attempts run out.
func (jc *Context) Fail(stage string, cause error) {
	jc.done = true
	msg := stage
	if cause != nil {
		msg = stage + ": " + cause.Error()
	}
	now := time.Now()
	err := jc.repo.UpdateFields(dbctx.New(jc.ctx), jc.job.ID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"error":         msg,
		"last_error_at": now,
	})
	if err != nil {
		jc.log.Error("job failure transition failed", "job_id", jc.job.ID, "error", err)
	}
}

func (jc *Context) finished() bool { return jc.done }
