package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/middleware"
	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/pkg/logger"
	"github.com/assetlens/backend/pkg/response"
)

type FeedbackHandler struct {
	feedbackService *services.FeedbackService
}

func NewFeedbackHandler(db *gorm.DB) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: services.NewFeedbackService(db)}
}

type submitFeedbackRequest struct {
	Question        string `json:"question" binding:"required"`
	Mode            string `json:"mode"`
	ResponsePayload string `json:"response_payload" binding:"required"`
	ContextPayload  string `json:"context_payload"`
	Rating          string `json:"rating" binding:"required"`
	Comment         string `json:"comment"`
}

// Submit records a rating for an assistant answer. Eligible negative feedback
// is queued for asynchronous policy analysis; the caller never waits on it.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	feedback, err := h.feedbackService.Submit(&services.SubmitFeedbackInput{
		UserID:          userID,
		Question:        req.Question,
		Mode:            req.Mode,
		ResponsePayload: req.ResponsePayload,
		ContextPayload:  req.ContextPayload,
		Rating:          req.Rating,
		Comment:         req.Comment,
	})
	if err != nil {
		if services.IsValidationError(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.ServerError(c, "failed to save feedback")
		return
	}

	queued := false
	if feedback.EligibleForAnalysis() {
		if err := services.GetTaskQueue().Enqueue(&services.GenerationTask{FeedbackID: feedback.ID}); err != nil {
			// The record is saved; a failed enqueue only delays analysis
			// until the next regenerate run.
			logger.Errorf("enqueue generation task for feedback %d: %v", feedback.ID, err)
		} else {
			queued = true
		}
	}

	services.LogInfo("feedback", "submit", "feedback submitted", &userID, c.ClientIP(), gin.H{
		"feedback_id": feedback.PublicID,
		"rating":      feedback.Rating,
		"queued":      queued,
	})

	response.Accepted(c, gin.H{
		"id":              feedback.PublicID,
		"rating":          feedback.Rating,
		"queued_analysis": queued,
		"created_at":      feedback.CreatedAt,
	})
}

// Get returns a single feedback record by its public identifier, including
// analysis status and any generated verdict.
func (h *FeedbackHandler) Get(c *gin.Context) {
	feedback, err := h.feedbackService.GetByPublicID(c.Param("public_id"))
	if err != nil {
		if errors.Is(err, services.ErrFeedbackNotFound) {
			response.NotFound(c, "feedback not found")
			return
		}
		response.ServerError(c, "failed to load feedback")
		return
	}

	userID, _ := middleware.CurrentUserID(c)
	role := c.GetString(middleware.ContextRole)
	if feedback.UserID != userID && role != "admin" {
		response.Forbidden(c, "no access to this feedback")
		return
	}

	response.Success(c, feedback)
}

type feedbackListQuery struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	Rating   string `form:"rating"`
	Analyzed *bool  `form:"analyzed"`
	Mine     bool   `form:"mine"`
}

// List returns a page of feedback records. Admins see everything; regular
// users only their own submissions.
func (h *FeedbackHandler) List(c *gin.Context) {
	var query feedbackListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	params := &services.FeedbackListParams{
		Page:     query.Page,
		PageSize: query.PageSize,
		Rating:   query.Rating,
		Analyzed: query.Analyzed,
	}

	role := c.GetString(middleware.ContextRole)
	if query.Mine || role != "admin" {
		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			response.Unauthorized(c, "not authenticated")
			return
		}
		params.UserID = userID
	}

	items, total, err := h.feedbackService.List(params)
	if err != nil {
		response.ServerError(c, "failed to list feedback")
		return
	}

	response.Success(c, gin.H{
		"items":     items,
		"total":     total,
		"page":      params.Page,
		"page_size": params.PageSize,
	})
}

// Retry re-enqueues analysis for a single unanalyzed record. Useful when a
// payload was fixed or an earlier run failed after exhausting retries.
func (h *FeedbackHandler) Retry(c *gin.Context) {
	feedback, err := h.feedbackService.GetByPublicID(c.Param("public_id"))
	if err != nil {
		if errors.Is(err, services.ErrFeedbackNotFound) {
			response.NotFound(c, "feedback not found")
			return
		}
		response.ServerError(c, "failed to load feedback")
		return
	}

	if feedback.Analyzed {
		response.Conflict(c, "feedback is already analyzed")
		return
	}
	if !feedback.EligibleForAnalysis() {
		response.BadRequest(c, "feedback is not eligible for analysis")
		return
	}

	if err := services.GetTaskQueue().Enqueue(&services.GenerationTask{FeedbackID: feedback.ID}); err != nil {
		response.ServerError(c, "failed to enqueue analysis task")
		return
	}

	response.Accepted(c, gin.H{"id": feedback.PublicID, "queued_analysis": true})
}
