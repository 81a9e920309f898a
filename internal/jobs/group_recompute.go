package jobs

import (
	"fmt"

	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/services"
)

// GroupRecomputeHandler rebuilds one group's rollup columns from scratch.
// It is the repair path for everything the incremental engine deliberately
// leaves untracked: bulk writes, upserts and suspected drift.
type GroupRecomputeHandler struct {
	log    *logger.Logger
	groups services.GroupService
}

func NewGroupRecomputeHandler(baseLog *logger.Logger, groups services.GroupService) *GroupRecomputeHandler {
	return &GroupRecomputeHandler{
		log:    baseLog.With("handler", "GroupRecompute"),
		groups: groups,
	}
}

func (h *GroupRecomputeHandler) Run(jc *Context) {
	job := jc.Job()
	if job.EntityID == nil {
		jc.Fail("validate", fmt.Errorf("group recompute job has no entity id"))
		return
	}
	jc.Heartbeat()

	values, err := h.groups.Recompute(jc.Ctx(), *job.EntityID)
	if err != nil {
		jc.Fail("recompute", err)
		return
	}
	h.log.Info("group recomputed", "group_id", *job.EntityID, "values", values)
	jc.Succeed(map[string]any{"values": values})
}
