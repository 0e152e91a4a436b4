package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/models"
	"realtime-service/internal/ws"
)

// RealtimeHandler exposes the gateway's read-only snapshots and the
// broadcast primitives the REST layer uses to push externally-originated
// events into live rooms.
type RealtimeHandler struct {
	hub *ws.Hub
}

// NewRealtimeHandler builds a RealtimeHandler.
func NewRealtimeHandler(hub *ws.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// GetStats returns open connection, online user and active room counts.
func (h *RealtimeHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.GetStats())
}

// GetOnlineUsers returns the current presence snapshot.
func (h *RealtimeHandler) GetOnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.hub.ListOnlineUsers()})
}

// BroadcastMessageUpdated pushes a message edited via REST into its room.
func (h *RealtimeHandler) BroadcastMessageUpdated(c *gin.Context) {
	var msg models.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg.ID == 0 || msg.ChatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and chatId are required"})
		return
	}

	h.hub.BroadcastMessageUpdated(msg)
	c.Status(http.StatusAccepted)
}

// BroadcastMessageDeleted pushes a message deleted via REST into its room.
func (h *RealtimeHandler) BroadcastMessageDeleted(c *gin.Context) {
	var req struct {
		MessageID int `json:"messageId" binding:"required"`
		ChatID    int `json:"chatId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.hub.BroadcastMessageDeleted(req.ChatID, req.MessageID)
	c.Status(http.StatusAccepted)
}
