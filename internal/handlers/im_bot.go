package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/pkg/response"
)

type IMBotHandler struct {
	service      *services.IMBotService
	notification *services.NotificationService
}

func NewIMBotHandler(db *gorm.DB) *IMBotHandler {
	return &IMBotHandler{
		service:      services.NewIMBotService(db),
		notification: services.NewNotificationService(db),
	}
}

// List returns paginated IM bots.
func (h *IMBotHandler) List(c *gin.Context) {
	var req services.IMBotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.List(&req)
	if err != nil {
		response.ServerError(c, "failed to list IM bots")
		return
	}

	response.Success(c, result)
}

// Get returns a single IM bot.
func (h *IMBotHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot ID")
		return
	}

	bot, err := h.service.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "IM bot not found")
			return
		}
		response.ServerError(c, "failed to load IM bot")
		return
	}

	response.Success(c, bot)
}

// Create adds a new IM bot.
func (h *IMBotHandler) Create(c *gin.Context) {
	var req services.CreateIMBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.service.Create(&req)
	if err != nil {
		response.ServerError(c, "failed to create IM bot")
		return
	}

	response.Created(c, bot)
}

// Update modifies an existing IM bot.
func (h *IMBotHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot ID")
		return
	}

	var req services.UpdateIMBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.service.Update(uint(id), &req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "IM bot not found")
			return
		}
		response.ServerError(c, "failed to update IM bot")
		return
	}

	response.Success(c, bot)
}

// Delete removes an IM bot.
func (h *IMBotHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot ID")
		return
	}

	if err := h.service.Delete(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "IM bot not found")
			return
		}
		response.ServerError(c, "failed to delete IM bot")
		return
	}

	response.Success(c, gin.H{"message": "IM bot deleted"})
}

// TestSend pushes a short test message through the bot's webhook so admins
// can verify credentials before enabling digests.
func (h *IMBotHandler) TestSend(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot ID")
		return
	}

	bot, err := h.service.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "IM bot not found")
			return
		}
		response.ServerError(c, "failed to load IM bot")
		return
	}

	msg := "Test message from AssetLens at " + time.Now().Format("2006-01-02 15:04:05")
	if err := h.notification.SendToBot(bot, "AssetLens Connectivity Test", msg); err != nil {
		response.ServerError(c, "test message failed: "+err.Error())
		return
	}

	response.Success(c, gin.H{"message": "test message sent"})
}
