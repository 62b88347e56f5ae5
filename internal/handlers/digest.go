package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/middleware"
	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/pkg/response"
)

type DigestHandler struct {
	service *services.DigestService
}

func NewDigestHandler(service *services.DigestService) *DigestHandler {
	return &DigestHandler{service: service}
}

// List returns paginated digests, newest first.
func (h *DigestHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.service.List(page, pageSize)
	if err != nil {
		response.ServerError(c, "failed to list digests")
		return
	}

	response.Success(c, gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Get returns a single digest.
func (h *DigestHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid digest ID")
		return
	}

	digest, err := h.service.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "digest not found")
			return
		}
		response.ServerError(c, "failed to load digest")
		return
	}

	response.Success(c, digest)
}

// GenerateNow builds today's digest on demand, outside the schedule.
func (h *DigestHandler) GenerateNow(c *gin.Context) {
	digest, err := h.service.Generate()
	if err != nil {
		response.ServerError(c, "failed to generate digest: "+err.Error())
		return
	}

	userID, _ := middleware.CurrentUserID(c)
	services.LogInfo("digest", "generate_now", "digest generated manually", &userID, c.ClientIP(), gin.H{"digest_id": digest.ID})

	response.Success(c, digest)
}

// Resend pushes an existing digest to the configured IM bots again.
func (h *DigestHandler) Resend(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid digest ID")
		return
	}

	if err := h.service.ResendNotification(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "digest not found")
			return
		}
		response.ServerError(c, "failed to resend digest: "+err.Error())
		return
	}

	response.Success(c, gin.H{"message": "digest resent"})
}
