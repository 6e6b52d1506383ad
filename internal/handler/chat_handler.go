package handler

import (
	"net/http"

	"chatio/internal/domain"
	"chatio/internal/middleware"
	"chatio/internal/repository"
	"chatio/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatHandler struct {
	conversations *service.ConversationManager
	dispatcher    *service.Dispatcher
	sessions      *service.SessionTracker
	log           *zap.Logger
}

func NewChatHandler(conversations *service.ConversationManager, dispatcher *service.Dispatcher, sessions *service.SessionTracker, log *zap.Logger) *ChatHandler {
	return &ChatHandler{conversations: conversations, dispatcher: dispatcher, sessions: sessions, log: log.Named("chat")}
}

type listConversationsQuery struct {
	Type   string `form:"type" binding:"omitempty,oneof=DIRECT PRIVATE_GROUP PUBLIC_GROUP STRANGER"`
	IsLeft *bool  `form:"is_left"`
}

// ListMyConversations returns the caller's conversations, optionally filtered by
// type and by whether the caller has left them.
func (h *ChatHandler) ListMyConversations(c *gin.Context) {
	var q listConversationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": service.KindValidation})
		return
	}
	list, err := h.conversations.ListConversations(c.Request.Context(), repository.ConversationFilter{
		UserID: middleware.GetUserID(c),
		Type:   q.Type,
		IsLeft: q.IsLeft,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// GetMyStrangerConversation returns the caller's active stranger conversation.
func (h *ChatHandler) GetMyStrangerConversation(c *gin.Context) {
	active, err := h.conversations.FindActiveStrangerConversation(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, active)
}

type messagesQuery struct {
	Offset    int    `form:"offset" binding:"min=0,max=100"`
	Limit     *int   `form:"limit" binding:"omitempty,min=0,max=100"`
	MessageID string `form:"message_id" binding:"omitempty,uuid"`
	SenderID  string `form:"sender_id" binding:"omitempty,uuid"`
}

// GetMessages pages through a conversation the caller belongs to, newest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	var q messagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": service.KindValidation})
		return
	}
	conversationID := c.Param("id")
	msgs, err := h.dispatcher.GetMessages(c.Request.Context(), service.GetMessagesInput{
		ConversationID: conversationID,
		MessageID:      q.MessageID,
		SenderID:       q.SenderID,
		ViewerID:       middleware.GetUserID(c),
		Offset:         q.Offset,
		Limit:          q.Limit,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, service.MessagesPayload{ConversationID: conversationID, Messages: msgs})
}

type sendMessageBody struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage stores a message and pushes it to the other online members.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": service.KindValidation})
		return
	}
	msg, err := h.dispatcher.SendMessage(c.Request.Context(), service.SendMessageInput{
		SenderID:       middleware.GetUserID(c),
		ConversationID: c.Param("id"),
		Content:        req.Content,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetPresence reports whether a user currently holds a live connection.
func (h *ChatHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")
	p, err := h.sessions.LookupPresence(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	resp := gin.H{"user_id": userID, "online": p != nil}
	if p != nil {
		resp["username"] = p.Username
	}
	c.JSON(http.StatusOK, resp)
}

// ConversationTypes lists the values accepted by the type filter.
func (h *ChatHandler) ConversationTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": domain.ConversationTypes})
}
