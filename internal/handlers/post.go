package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/rollup-backend/internal/services"
)

type PostHandler struct {
	posts services.PostService
}

func NewPostHandler(posts services.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

type createPostRequest struct {
	GroupID  *uuid.UUID `json:"group_id"`
	AuthorID *uuid.UUID `json:"author_id"`
	Title    string     `json:"title" binding:"required"`
	Body     string     `json:"body"`
	Visible  *bool      `json:"visible"`
}

// POST /api/v1/posts
func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	post, err := h.posts.Create(c.Request.Context(), req.GroupID, req.AuthorID, req.Title, req.Body, visible)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"post": post})
}

// GET /api/v1/posts/:id
func (h *PostHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_post_id", err)
		return
	}
	post, err := h.posts.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"post": post})
}

// GET /api/v1/groups/:id/posts
func (h *PostHandler) ListByGroup(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_group_id", err)
		return
	}
	limit, offset := pageParams(c)
	posts, err := h.posts.ListByGroup(c.Request.Context(), groupID, limit, offset)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"posts": posts})
}

type setVisibleRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// POST /api/v1/posts/:id/visibility
func (h *PostHandler) SetVisible(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_post_id", err)
		return
	}
	var req setVisibleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Visible == nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.posts.SetVisible(c.Request.Context(), id, *req.Visible); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"updated": true})
}

// DELETE /api/v1/posts/:id
func (h *PostHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_post_id", err)
		return
	}
	if c.Query("purge") == "true" {
		if err := h.posts.Purge(c.Request.Context(), id); err != nil {
			RespondDomainError(c, err)
			return
		}
	} else if err := h.posts.Delete(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}
