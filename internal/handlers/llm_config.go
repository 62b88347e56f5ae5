package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/pkg/response"
)

type LLMConfigHandler struct {
	service *services.LLMConfigService
}

func NewLLMConfigHandler(db *gorm.DB) *LLMConfigHandler {
	return &LLMConfigHandler{service: services.NewLLMConfigService(db)}
}

// List returns paginated LLM configs with masked API keys.
func (h *LLMConfigHandler) List(c *gin.Context) {
	var req services.LLMConfigListRequest
	req.Page = 1
	req.PageSize = 20
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.List(&req)
	if err != nil {
		response.ServerError(c, "failed to list LLM configs")
		return
	}

	response.Success(c, result)
}

// Get returns a single LLM config.
func (h *LLMConfigHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid config ID")
		return
	}

	config, err := h.service.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "LLM config not found")
			return
		}
		response.ServerError(c, "failed to load LLM config")
		return
	}

	response.Success(c, config)
}

// Create adds a new LLM config.
func (h *LLMConfigHandler) Create(c *gin.Context) {
	var req services.CreateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	config, err := h.service.Create(&req)
	if err != nil {
		response.ServerError(c, "failed to create LLM config")
		return
	}

	response.Created(c, config)
}

// Update modifies an existing LLM config.
func (h *LLMConfigHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid config ID")
		return
	}

	var req services.UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	config, err := h.service.Update(uint(id), &req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "LLM config not found")
			return
		}
		response.ServerError(c, "failed to update LLM config")
		return
	}

	response.Success(c, config)
}

// Delete removes an LLM config.
func (h *LLMConfigHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid config ID")
		return
	}

	if err := h.service.Delete(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "LLM config not found")
			return
		}
		response.ServerError(c, "failed to delete LLM config")
		return
	}

	response.Success(c, gin.H{"message": "LLM config deleted"})
}
