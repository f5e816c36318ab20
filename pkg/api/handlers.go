package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldlink/meshlink/pkg/protocol"
	"github.com/fieldlink/meshlink/pkg/router"
)

type sendMessageRequest struct {
	ChannelID string             `json:"channel_id" binding:"required"`
	Content   string             `json:"content"`
	Media     *protocol.MediaRef `json:"media,omitempty"`
}

type channelRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Status())
}

func (s *Server) handleListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.node.Channels()})
}

func (s *Server) handleJoinChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash := s.node.JoinChannel(req.ChannelID)
	c.JSON(http.StatusOK, gin.H{
		"channel_id":   req.ChannelID,
		"channel_hash": hash,
	})
}

func (s *Server) handleLeaveChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.node.LeaveChannel(req.ChannelID)
	c.JSON(http.StatusOK, gin.H{"channel_id": req.ChannelID})
}

func (s *Server) handleInviteChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.node.SendInvite(req.ChannelID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": req.ChannelID})
}

func (s *Server) handleDeleteChannel(c *gin.Context) {
	channelID := c.Param("channelID")
	if err := s.node.DeleteChannel(channelID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := s.node.Send(req.ChannelID, req.Content, req.Media)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, router.ErrNotMember), errors.Is(err, router.ErrEmptySend):
			status = http.StatusBadRequest
		case errors.Is(err, router.ErrNotRunning):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message_id": msg.ID,
		"timestamp":  msg.Timestamp,
	})
}

func (s *Server) handleListMessages(c *gin.Context) {
	channelID := c.Param("channelID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	messages, err := s.store.ListChannelMessages(channelID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_id": channelID,
		"messages":   messages,
		"count":      len(messages),
	})
}
