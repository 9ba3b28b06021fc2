package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pccr10001/groupcall/internal/calling"
	"github.com/pccr10001/groupcall/internal/dialog"
	"github.com/pccr10001/groupcall/internal/miclevel"
	"github.com/pccr10001/groupcall/pkg/logger"
)

// browserMicID selects the microphone of the browser holding the dialog.
const browserMicID = "webrtc"

type DeviceLister interface {
	Devices() []miclevel.Device
}

type DialogHandler struct {
	dialogs *dialog.Manager
	devices DeviceLister
	callMgr *calling.Manager
}

func NewDialogHandler(dialogs *dialog.Manager, devices DeviceLister, callMgr *calling.Manager) *DialogHandler {
	return &DialogHandler{dialogs: dialogs, devices: devices, callMgr: callMgr}
}

type deviceRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

func (h *DialogHandler) ListDevices(c *gin.Context) {
	list := []miclevel.Device{miclevel.DefaultDevice()}
	if h.devices != nil {
		list = append(list, h.devices.Devices()...)
	}
	if h.callMgr != nil {
		list = append(list, miclevel.Device{ID: browserMicID, Name: "Browser microphone"})
	}
	c.JSON(http.StatusOK, list)
}

// Open starts a settings dialog on the call.
func (h *DialogHandler) Open(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Input *deviceRequest `json:"input"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var input *miclevel.Device
	if req.Input != nil && req.Input.ID != browserMicID {
		if strings.HasPrefix(req.Input.ID, browserMicID+":") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "connect the browser microphone after opening the dialog"})
			return
		}
		input = &miclevel.Device{ID: req.Input.ID, Name: req.Input.Name}
	}

	d, err := h.dialogs.Open(c.Request.Context(), c.Param("id"), user.ID, input)
	if err != nil {
		writeDialogError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.Info())
}

func (h *DialogHandler) Get(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	d.Touch()
	c.JSON(http.StatusOK, d.Info())
}

func (h *DialogHandler) SetJoinMuted(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	var req struct {
		JoinMuted *bool `json:"join_muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := d.SetJoinMuted(*req.JoinMuted); err != nil {
		writeDialogError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.Info())
}

func (h *DialogHandler) SetInput(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dev := miclevel.Device{ID: req.ID, Name: req.Name}
	switch {
	case req.ID == browserMicID:
		if h.callMgr == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calling manager not initialized"})
			return
		}
		if err := h.callMgr.RequireConnected(d.ID); err != nil {
			writeDialogError(c, err)
			return
		}
		dev = miclevel.PeerDevice(d.ID)
	case strings.HasPrefix(req.ID, browserMicID+":") && req.ID != miclevel.PeerDevice(d.ID).ID:
		c.JSON(http.StatusForbidden, gin.H{"error": "not your browser microphone"})
		return
	}
	if err := d.SetInput(dev); err != nil {
		writeDialogError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.Info())
}

func (h *DialogHandler) SetOutput(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := d.SetOutput(req.Name); err != nil {
		writeDialogError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.Info())
}

// Share answers 200 with the link, or 202 while it is being generated.
// The link then arrives on the levels websocket.
func (h *DialogHandler) Share(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	link, ready, err := d.Share(c.Request.Context())
	if err != nil {
		writeDialogError(c, err)
		return
	}
	if !ready {
		c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link})
}

func (h *DialogHandler) Close(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	outcome, err := h.dialogs.Close(c.Request.Context(), d.ID)
	if err != nil {
		writeDialogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed", "join_muted": outcome.String()})
}

func (h *DialogHandler) EndCall(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.dialogs.EndCall(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		writeDialogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

func (h *DialogHandler) Levels(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	handleLevelsWS(c, d)
}

func (h *DialogHandler) Signal(c *gin.Context) {
	d, ok := h.dialogFor(c)
	if !ok {
		return
	}
	if h.callMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calling manager not initialized"})
		return
	}
	handleSignalWS(c, h.callMgr, d)
}

// dialogFor loads the dialog named in the path and checks it belongs to
// the caller.
func (h *DialogHandler) dialogFor(c *gin.Context) (*dialog.Dialog, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	d, err := h.dialogs.Get(c.Param("id"))
	if err != nil {
		writeDialogError(c, err)
		return nil, false
	}
	if d.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied for this dialog"})
		return nil, false
	}
	return d, true
}

func writeDialogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dialog.ErrCallNotFound), errors.Is(err, dialog.ErrDialogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dialog.ErrDialogClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, dialog.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, dialog.ErrShareUnavailable), errors.Is(err, calling.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, dialog.ErrManagerStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.Log.Errorf("dialog request %s failed: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
