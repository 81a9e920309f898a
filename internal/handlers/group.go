package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/rollup-backend/internal/middleware"
	"github.com/yungbote/rollup-backend/internal/services"
)

type GroupHandler struct {
	groups services.GroupService
}

func NewGroupHandler(groups services.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

type createGroupRequest struct {
	Name     string         `json:"name" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

// POST /api/v1/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	group, err := h.groups.Create(c.Request.Context(), middleware.CurrentUserID(c), req.Name, req.Metadata)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"group": group})
}

// GET /api/v1/groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	group, err := h.groups.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"group": group})
}

// GET /api/v1/groups
func (h *GroupHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	var owner *uuid.UUID
	if raw := c.Query("owner_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_owner_user_id", err)
			return
		}
		owner = &id
	}
	groups, err := h.groups.List(c.Request.Context(), owner, limit, offset)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"groups": groups})
}

type renameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// PATCH /api/v1/groups/:id
func (h *GroupHandler) Rename(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	var req renameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.groups.Rename(c.Request.Context(), id, req.Name); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"updated": true})
}

// DELETE /api/v1/groups/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	if c.Query("purge") == "true" {
		if err := h.groups.Purge(c.Request.Context(), id); err != nil {
			RespondDomainError(c, err)
			return
		}
	} else if err := h.groups.Delete(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// POST /api/v1/groups/:id/recompute
func (h *GroupHandler) Recompute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	if c.Query("async") == "true" {
		job, err := h.groups.EnqueueRecompute(c.Request.Context(), middleware.CurrentUserID(c), id)
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		RespondOK(c, gin.H{"job": job})
		return
	}
	values, err := h.groups.Recompute(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"values": values})
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
