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

type PolicyHandler struct {
	policyService *services.PolicyService
	merger        *services.PolicyMerger
	pipeline      *services.Pipeline
}

func NewPolicyHandler(db *gorm.DB, pipeline *services.Pipeline) *PolicyHandler {
	policyService := services.NewPolicyService(db)
	return &PolicyHandler{
		policyService: policyService,
		merger:        services.NewPolicyMerger(policyService),
		pipeline:      pipeline,
	}
}

type createPolicyRequest struct {
	Category  string   `json:"category" binding:"required"`
	Rule      string   `json:"rule" binding:"required"`
	Priority  string   `json:"priority" binding:"required"`
	Rationale string   `json:"rationale"`
	Examples  []string `json:"examples"`
}

// CreateCustom adds an admin-authored policy to the active set.
func (h *PolicyHandler) CreateCustom(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	policy, err := h.policyService.CreateCustom(&services.CreateCustomInput{
		Category:  req.Category,
		Rule:      req.Rule,
		Priority:  req.Priority,
		Rationale: req.Rationale,
		Examples:  req.Examples,
		CreatedBy: userID,
	})
	if err != nil {
		if services.IsValidationError(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.ServerError(c, "failed to create policy")
		return
	}

	services.LogInfo("policy", "create", "custom policy created", &userID, c.ClientIP(), gin.H{"policy_id": policy.ID})
	response.Created(c, policy)
}

type updatePolicyRequest struct {
	Category  *string  `json:"category"`
	Rule      *string  `json:"rule"`
	Priority  *string  `json:"priority"`
	Rationale *string  `json:"rationale"`
	Examples  []string `json:"examples"`
}

// UpdateCustom applies a partial update to a custom policy.
func (h *PolicyHandler) UpdateCustom(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid policy ID")
		return
	}

	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	policy, err := h.policyService.UpdateCustom(uint(id), &services.UpdateCustomInput{
		Category:  req.Category,
		Rule:      req.Rule,
		Priority:  req.Priority,
		Rationale: req.Rationale,
		Examples:  req.Examples,
	})
	if err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			response.NotFound(c, "policy not found")
			return
		}
		if services.IsValidationError(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.ServerError(c, "failed to update policy")
		return
	}

	response.Success(c, policy)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive toggles whether a custom policy participates in the merged set.
func (h *PolicyHandler) SetActive(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid policy ID")
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.policyService.SetActive(uint(id), *req.Active); err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			response.NotFound(c, "policy not found")
			return
		}
		response.ServerError(c, "failed to update policy")
		return
	}

	response.Success(c, gin.H{"id": id, "active": *req.Active})
}

// DeleteCustom soft-deletes a custom policy.
func (h *PolicyHandler) DeleteCustom(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid policy ID")
		return
	}

	if err := h.policyService.DeleteCustom(uint(id)); err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			response.NotFound(c, "policy not found")
			return
		}
		response.ServerError(c, "failed to delete policy")
		return
	}

	response.Success(c, gin.H{"message": "policy deleted"})
}

// GetCustom returns a single custom policy.
func (h *PolicyHandler) GetCustom(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid policy ID")
		return
	}

	policy, err := h.policyService.GetCustomByID(uint(id))
	if err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			response.NotFound(c, "policy not found")
			return
		}
		response.ServerError(c, "failed to load policy")
		return
	}

	response.Success(c, policy)
}

type policyListQuery struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	Category string `form:"category"`
	Active   *bool  `form:"active"`
}

// ListCustom returns a page of custom policies for administration.
func (h *PolicyHandler) ListCustom(c *gin.Context) {
	var query policyListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	items, total, err := h.policyService.ListCustom(&services.CustomPolicyListParams{
		Page:     query.Page,
		PageSize: query.PageSize,
		Category: query.Category,
		Active:   query.Active,
	})
	if err != nil {
		response.ServerError(c, "failed to list policies")
		return
	}

	response.Success(c, gin.H{
		"items":     items,
		"total":     total,
		"page":      query.Page,
		"page_size": query.PageSize,
	})
}

// ActiveSet returns the merged, ranked policy set currently applied to
// assistant prompts.
func (h *PolicyHandler) ActiveSet(c *gin.Context) {
	merged, err := h.merger.ActiveMerged()
	if err != nil {
		response.ServerError(c, "failed to build active policy set")
		return
	}

	response.Success(c, gin.H{
		"items": merged,
		"total": len(merged),
	})
}

// PromptPreview renders the guideline block exactly as it will be injected
// into assistant prompts.
func (h *PolicyHandler) PromptPreview(c *gin.Context) {
	block, err := h.merger.PromptBlock()
	if err != nil {
		response.ServerError(c, "failed to render prompt block")
		return
	}

	response.Success(c, gin.H{"prompt_block": block})
}

// RegenerateAll re-analyzes every eligible feedback record against the
// current policy set, overwriting prior verdicts. Runs synchronously and
// reports per-record outcomes.
func (h *PolicyHandler) RegenerateAll(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	report, err := h.pipeline.RegenerateAll(c.Request.Context())
	if err != nil {
		response.ServerError(c, "regeneration aborted: "+err.Error())
		return
	}

	services.LogInfo("policy", "regenerate_all", "bulk regeneration finished", &userID, c.ClientIP(), gin.H{
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	})

	response.Success(c, report)
}
