package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/middleware"
	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/pkg/response"
)

type SystemConfigHandler struct {
	service  *services.SystemConfigService
	digest   *services.DigestService
	pipeline *services.Pipeline
}

func NewSystemConfigHandler(db *gorm.DB, digest *services.DigestService, pipeline *services.Pipeline) *SystemConfigHandler {
	return &SystemConfigHandler{
		service:  services.NewSystemConfigService(db),
		digest:   digest,
		pipeline: pipeline,
	}
}

// GetByGroup returns all config entries in a group.
func (h *SystemConfigHandler) GetByGroup(c *gin.Context) {
	group := c.Query("group")
	if group == "" {
		response.BadRequest(c, "group is required")
		return
	}

	configs, err := h.service.GetByGroup(group)
	if err != nil {
		response.ServerError(c, "failed to load config")
		return
	}

	response.Success(c, configs)
}

type updateConfigRequest struct {
	Items []struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	} `json:"items" binding:"required,dive"`
}

// Update writes config entries and re-applies any settings that feed live
// components, like the digest schedule and the pipeline retry policy.
func (h *SystemConfigHandler) Update(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	digestChanged := false
	pipelineChanged := false
	for _, item := range req.Items {
		if err := h.service.Set(item.Key, item.Value); err != nil {
			response.ServerError(c, "failed to save config: "+item.Key)
			return
		}
		if strings.HasPrefix(item.Key, "digest_") {
			digestChanged = true
		}
		if strings.HasPrefix(item.Key, "generation_") {
			pipelineChanged = true
		}
	}

	if digestChanged && h.digest != nil {
		h.digest.RefreshSchedule()
	}
	if pipelineChanged && h.pipeline != nil {
		h.pipeline.SetRetryPolicy(h.service.GenerationMaxAttempts(), h.service.GenerationBackoff())
	}

	userID, _ := middleware.CurrentUserID(c)
	services.LogInfo("system_config", "update", "system config updated", &userID, c.ClientIP(), gin.H{"count": len(req.Items)})

	response.Success(c, gin.H{"message": "config updated"})
}

// GetLDAPConfig returns the LDAP settings with the bind password omitted.
func (h *SystemConfigHandler) GetLDAPConfig(c *gin.Context) {
	response.Success(c, h.service.GetLDAPConfig())
}

// UpdateLDAPConfig writes LDAP settings.
func (h *SystemConfigHandler) UpdateLDAPConfig(c *gin.Context) {
	var req services.UpdateLDAPConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.UpdateLDAPConfig(&req); err != nil {
		response.ServerError(c, "failed to update LDAP config")
		return
	}

	userID, _ := middleware.CurrentUserID(c)
	services.LogInfo("system_config", "update_ldap", "LDAP config updated", &userID, c.ClientIP(), nil)

	response.Success(c, gin.H{"message": "LDAP config updated"})
}
