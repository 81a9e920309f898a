package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/rollup-backend/internal/services"
)

type MemberHandler struct {
	members services.MemberService
}

func NewMemberHandler(members services.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

type addMemberRequest struct {
	GroupID     *uuid.UUID `json:"group_id"`
	DisplayName string     `json:"display_name" binding:"required"`
	Active      *bool      `json:"active"`
	Points      int64      `json:"points"`
}

// POST /api/v1/members
func (h *MemberHandler) Add(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	member, err := h.members.Add(c.Request.Context(), req.GroupID, req.DisplayName, active, req.Points)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"member": member})
}

// GET /api/v1/members/:id
func (h *MemberHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	member, err := h.members.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"member": member})
}

// GET /api/v1/groups/:id/members
func (h *MemberHandler) ListByGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	limit, offset := pageParams(c)
	members, err := h.members.ListByGroup(c.Request.Context(), groupID, limit, offset)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"members": members})
}

type updateMemberRequest struct {
	DisplayName *string `json:"display_name"`
	Active      *bool   `json:"active"`
}

// PATCH /api/v1/members/:id
func (h *MemberHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ctx := c.Request.Context()
	if req.DisplayName != nil {
		if err := h.members.Rename(ctx, id, *req.DisplayName); err != nil {
			RespondDomainError(c, err)
			return
		}
	}
	if req.Active != nil {
		if err := h.members.SetActive(ctx, id, *req.Active); err != nil {
			RespondDomainError(c, err)
			return
		}
	}
	RespondOK(c, gin.H{"updated": true})
}

type addPointsRequest struct {
	Delta int64 `json:"delta" binding:"required"`
}

// POST /api/v1/members/:id/points
func (h *MemberHandler) AddPoints(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	var req addPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.members.AddPoints(c.Request.Context(), id, req.Delta); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"updated": true})
}

type moveMemberRequest struct {
	GroupID *uuid.UUID `json:"group_id"`
}

// POST /api/v1/members/:id/move
func (h *MemberHandler) Move(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	var req moveMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.members.MoveToGroup(c.Request.Context(), id, req.GroupID); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"updated": true})
}

// DELETE /api/v1/members/:id
func (h *MemberHandler) Remove(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	if c.Query("purge") == "true" {
		if err := h.members.Purge(c.Request.Context(), id); err != nil {
			RespondDomainError(c, err)
			return
		}
	} else if err := h.members.Remove(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// POST /api/v1/members/:id/restore
func (h *MemberHandler) Restore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_member_id", err)
		return
	}
	if err := h.members.Restore(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"restored": true})
}
