package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/pkg/response"
)

type SystemLogHandler struct {
	service *services.SystemLogService
}

func NewSystemLogHandler(db *gorm.DB) *SystemLogHandler {
	return &SystemLogHandler{service: services.NewSystemLogService(db)}
}

// List returns paginated system logs with optional filters.
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	req.Page = 1
	req.PageSize = 20
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.List(&req)
	if err != nil {
		response.ServerError(c, "failed to list logs")
		return
	}

	response.Success(c, result)
}

// GetModules returns the distinct module names present in the logs, for
// filter dropdowns.
func (h *SystemLogHandler) GetModules(c *gin.Context) {
	modules, err := h.service.GetModules()
	if err != nil {
		response.ServerError(c, "failed to load modules")
		return
	}

	response.Success(c, modules)
}
