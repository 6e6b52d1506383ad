package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatio/config"
	"chatio/internal/auth"
	"chatio/internal/domain"
	"chatio/internal/middleware"
	"chatio/internal/models"
	"chatio/internal/service"
	"chatio/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventTimeout   = 10 * time.Second
	cleanupTimeout = 5 * time.Second
)

type skipStrangerRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid"`
	Content        string `json:"content"`
}

type getMessagesRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid"`
	MessageID      string `json:"message_id" validate:"omitempty,uuid"`
	SenderID       string `json:"sender_id" validate:"omitempty,uuid"`
	Offset         int    `json:"offset"`
	Limit          *int   `json:"limit"`
}

type readMessagesRequest struct {
	ConversationID string   `json:"conversation_id" validate:"required,uuid"`
	MessageIDs     []string `json:"message_ids" validate:"required,min=1,max=100,dive,uuid"`
}

type readMessagesReply struct {
	ConversationID string `json:"conversation_id"`
	Count          int64  `json:"count"`
}

// ChatGateway adapts socket events to the chat services. Events of one
// connection are handled in arrival order.
type ChatGateway struct {
	cfg           *config.Config
	hub           *ws.Hub
	auth          *service.AuthService
	sessions      *service.SessionTracker
	matchmaker    *service.Matchmaker
	conversations *service.ConversationManager
	dispatcher    *service.Dispatcher
	limiter       *middleware.InMemoryRateLimiter
	validate      *validator.Validate
	log           *zap.Logger
}

func NewChatGateway(
	cfg *config.Config,
	hub *ws.Hub,
	authSvc *service.AuthService,
	sessions *service.SessionTracker,
	matchmaker *service.Matchmaker,
	conversations *service.ConversationManager,
	dispatcher *service.Dispatcher,
	limiter *middleware.InMemoryRateLimiter,
	log *zap.Logger,
) *ChatGateway {
	return &ChatGateway{
		cfg:           cfg,
		hub:           hub,
		auth:          authSvc,
		sessions:      sessions,
		matchmaker:    matchmaker,
		conversations: conversations,
		dispatcher:    dispatcher,
		limiter:       limiter,
		validate:      validator.New(),
		log:           log.Named("gateway"),
	}
}

// Upgrade authenticates the caller (query "token" or bearer header), upgrades to
// a websocket and serves it until the connection drops.
func (g *ChatGateway) Upgrade(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}
	claims, err := auth.ParseAccessToken(&g.cfg.JWT, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	user, err := g.auth.Identify(c.Request.Context(), claims.UserID)
	if errors.Is(err, service.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
		return
	}
	if err != nil {
		respondError(c, g.log, err)
		return
	}

	conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := ws.NewClient(user.ID, user.Username, g.cfg.Chat.ClientSendBuffer)
	g.hub.Register(client)
	base := context.WithoutCancel(c.Request.Context())

	connectCtx, cancel := context.WithTimeout(base, eventTimeout)
	_, err = g.sessions.Connect(connectCtx, client.ID, user.ID, user.Username)
	cancel()
	if err != nil {
		g.log.Error("register presence", zap.String("user_id", user.ID), zap.Error(err))
		client.Close()
		if frame, ferr := ws.Frame(domain.EventError, describe(g.log, err)); ferr == nil {
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
		return
	}
	defer g.disconnect(base, client)

	ws.Serve(conn, client, func(env ws.Envelope) {
		ctx, cancel := context.WithTimeout(base, eventTimeout)
		defer cancel()
		g.dispatch(ctx, client, env)
	})
}

// disconnect never fails: every cleanup step logs and moves on.
func (g *ChatGateway) disconnect(base context.Context, client *ws.Client) {
	ctx, cancel := context.WithTimeout(base, cleanupTimeout)
	defer cancel()
	client.Close()
	g.limiter.Forget(client.ID)

	s, current := g.sessions.Disconnect(ctx, client.ID)
	if s == nil || !current {
		return
	}
	left, err := g.matchmaker.LeaveActive(ctx, s.UserID)
	if err != nil {
		g.log.Error("leave on disconnect", zap.String("user_id", s.UserID), zap.Error(err))
		return
	}
	g.notifyLeave(ctx, left)
}

func (g *ChatGateway) dispatch(ctx context.Context, client *ws.Client, env ws.Envelope) {
	if !g.limiter.Allow(client.ID) {
		g.replyError(client, env.Event, fmt.Errorf("%w: too many events", service.ErrValidation))
		return
	}
	var err error
	switch env.Event {
	case domain.EventMatchingStranger:
		err = g.matchingStranger(ctx, client)
	case domain.EventSkipStranger:
		err = g.skipStranger(ctx, client, env)
	case domain.EventSendMessage:
		err = g.sendMessage(ctx, client, env)
	case domain.EventGetMessages:
		err = g.getMessages(ctx, client, env)
	case domain.EventReadMessages:
		err = g.readMessages(ctx, client, env)
	case domain.EventPing:
		g.reply(client, domain.EventPong, gin.H{"time": time.Now().UTC()})
	case "":
		err = fmt.Errorf("%w: malformed frame", service.ErrValidation)
	default:
		err = fmt.Errorf("%w: unknown event %q", service.ErrValidation, env.Event)
	}
	if err != nil {
		g.replyError(client, env.Event, err)
	}
}

func (g *ChatGateway) matchingStranger(ctx context.Context, client *ws.Client) error {
	res, err := g.matchmaker.RequestMatch(ctx, client.UserID)
	if err != nil {
		return err
	}
	g.notifyLeave(ctx, res.Left)
	if res.Status != domain.MatchStatusMatched {
		g.reply(client, domain.EventMatchingStranger, res)
		return nil
	}
	for _, p := range res.Participants {
		if p.UserID == client.UserID {
			g.reply(client, domain.EventMatchedStranger, res)
			continue
		}
		g.pushToUser(ctx, p.UserID, domain.EventMatchedStranger, res)
	}
	return nil
}

func (g *ChatGateway) skipStranger(ctx context.Context, client *ws.Client, env ws.Envelope) error {
	var req skipStrangerRequest
	if err := g.bind(env, &req); err != nil {
		return err
	}
	if _, err := g.conversations.RequireParticipant(ctx, req.ConversationID, client.UserID, true); err != nil {
		return err
	}
	res, err := g.matchmaker.SkipOrLeave(ctx, req.ConversationID, client.UserID)
	if err != nil {
		return err
	}
	g.notifyLeave(ctx, res)
	return nil
}

func (g *ChatGateway) sendMessage(ctx context.Context, client *ws.Client, env ws.Envelope) error {
	var req sendMessageRequest
	if err := g.bind(env, &req); err != nil {
		return err
	}
	msg, err := g.dispatcher.SendMessage(ctx, service.SendMessageInput{
		SenderID:       client.UserID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		return err
	}
	g.reply(client, domain.EventSendMessage, msg)
	return nil
}

func (g *ChatGateway) getMessages(ctx context.Context, client *ws.Client, env ws.Envelope) error {
	var req getMessagesRequest
	if err := g.bind(env, &req); err != nil {
		return err
	}
	msgs, err := g.dispatcher.GetMessages(ctx, service.GetMessagesInput{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		SenderID:       req.SenderID,
		ViewerID:       client.UserID,
		Offset:         req.Offset,
		Limit:          req.Limit,
	})
	if err != nil {
		return err
	}
	g.reply(client, domain.EventGetMessages, service.MessagesPayload{ConversationID: req.ConversationID, Messages: msgs})
	return nil
}

func (g *ChatGateway) readMessages(ctx context.Context, client *ws.Client, env ws.Envelope) error {
	var req readMessagesRequest
	if err := g.bind(env, &req); err != nil {
		return err
	}
	n, err := g.dispatcher.MarkRead(ctx, client.UserID, req.ConversationID, req.MessageIDs)
	if err != nil {
		return err
	}
	g.reply(client, domain.EventReadMessages, readMessagesReply{ConversationID: req.ConversationID, Count: n})
	return nil
}

// notifyLeave tells everyone touched by a leave, including those who just left.
func (g *ChatGateway) notifyLeave(ctx context.Context, res *service.LeaveResult) {
	if res == nil {
		return
	}
	seen := make(map[string]bool, len(res.Updated)+len(res.Remaining))
	for _, group := range [][]models.ConversationParticipant{res.Updated, res.Remaining} {
		for _, p := range group {
			if seen[p.UserID] {
				continue
			}
			seen[p.UserID] = true
			g.pushToUser(ctx, p.UserID, domain.EventSkipStranger, res)
		}
	}
}

// pushToUser is best effort: offline users are skipped and failures logged.
func (g *ChatGateway) pushToUser(ctx context.Context, userID, event string, payload any) {
	p, err := g.sessions.LookupPresence(ctx, userID)
	if err != nil {
		g.log.Warn("presence lookup", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if p == nil {
		return
	}
	if err := g.hub.Emit(p.ConnectionID, event, payload); err != nil {
		g.log.Warn("push", zap.String("user_id", userID), zap.String("event", event), zap.Error(err))
	}
}

func (g *ChatGateway) reply(client *ws.Client, event string, payload any) {
	if err := g.hub.Emit(client.ID, event, payload); err != nil {
		g.log.Debug("reply dropped", zap.String("connection_id", client.ID), zap.String("event", event), zap.Error(err))
	}
}

func (g *ChatGateway) replyError(client *ws.Client, event string, err error) {
	body := describe(g.log, err)
	body.Event = event
	g.reply(client, domain.EventError, body)
}

func (g *ChatGateway) bind(env ws.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: data is required", service.ErrValidation)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	if err := g.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return nil
}
