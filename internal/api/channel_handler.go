package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pccr10001/groupcall/internal/logic"
	"github.com/pccr10001/groupcall/internal/model"
	"github.com/pccr10001/groupcall/internal/repository"
	"gorm.io/gorm"
)

type ChannelHandler struct {
	channels *repository.ChannelRepository
	settings *logic.SettingsService
}

func NewChannelHandler(channels *repository.ChannelRepository, settings *logic.SettingsService) *ChannelHandler {
	return &ChannelHandler{channels: channels, settings: settings}
}

func (h *ChannelHandler) ListChannels(c *gin.Context) {
	list, err := h.channels.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req struct {
		Title             string `json:"title" binding:"required"`
		Username          string `json:"username" binding:"omitempty,alphanum"`
		CanHaveInviteLink bool   `json:"can_have_invite_link"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := model.Channel{
		Title:             req.Title,
		Username:          req.Username,
		CanHaveInviteLink: req.CanHaveInviteLink,
	}
	if err := h.channels.Create(c.Request.Context(), &channel); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, channel)
}

func (h *ChannelHandler) GrantAdmin(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	var req struct {
		UserID        uint `json:"user_id" binding:"required"`
		CanManageCall bool `json:"can_manage_call"`
		CanInvite     bool `json:"can_invite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin := model.ChannelAdmin{
		UserID:        req.UserID,
		ChannelID:     channelID,
		CanManageCall: req.CanManageCall,
		CanInvite:     req.CanInvite,
	}
	if err := h.channels.GrantAdmin(c.Request.Context(), &admin); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, admin)
}

func (h *ChannelHandler) StartCall(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	var req struct {
		Title              string `json:"title"`
		CanChangeJoinMuted bool   `json:"can_change_join_muted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call, err := h.settings.StartCall(c.Request.Context(), channelID, req.Title, req.CanChangeJoinMuted)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	case errors.Is(err, logic.ErrCallMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "channel already has an active call"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h *ChannelHandler) ListCalls(c *gin.Context) {
	calls, err := h.settings.ActiveCalls(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, calls)
}

func channelParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return 0, false
	}
	return uint(id), true
}
