package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/config"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/hub"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/repository"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/service"
	"github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	auth    *middleware.AuthMiddleware
	wsCfg   config.WebSocketConfig
	ctx     context.Context
}

// NewWSHandler creates the websocket handler. ctx bounds the lifetime of the
// connections it serves and carries the base logger.
func NewWSHandler(ctx context.Context, h *hub.Hub, svc service.ChatService, auth *middleware.AuthMiddleware, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		auth:    auth,
		wsCfg:   wsCfg,
		ctx:     ctx,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(r.Context())

	identity, err := h.auth.Identify(r)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldClientIP, r.RemoteAddr).Msg("websocket connection rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := domain.NewSession(uuid.New().String(), identity.UserID, identity.Username, identity.Authenticated)
	client := hub.NewClient(session, h.hub, conn, h.wsCfg)

	if err := h.hub.Register(client); err != nil {
		l.Warn().Err(err).Msg("hub unavailable, closing connection")
		conn.Close()
		return
	}

	ctx := h.connectionContext(client)
	go client.WritePump()

	if err := h.service.HandleConnect(ctx, client); err != nil {
		l.Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("failed to greet client")
	}

	go client.ReadPump(h.handleMessage, func(c *hub.Client, cause error) {
		h.service.HandleDisconnect(h.connectionContext(c), c, cause)
	})
}

func (h *WSHandler) connectionContext(c *hub.Client) context.Context {
	logger := log.Ctx(h.ctx).With().
		Str(log.FieldConnectionID, c.ID).
		Str(log.FieldUsername, c.Session.Username).
		Logger()
	return log.WithLogger(h.ctx, logger)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	if !client.Allow() {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeRateLimited, "Too many messages"))
		return
	}

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := h.connectionContext(client)

	switch base.Type {
	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid join_chat_room message"))
			return
		}
		h.reply(ctx, client, base.Type, h.service.HandleJoinRoom(ctx, client, msg.RoomID))

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageRequest
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid send_message message"))
			return
		}
		h.reply(ctx, client, base.Type, h.service.HandleSendMessage(ctx, client, msg.Message, msg.Room()))

	case domain.MsgTypeLeaveRoom:
		var msg domain.LeaveRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid leave_chat_room message"))
			return
		}
		h.reply(ctx, client, base.Type, h.service.HandleLeaveRoom(ctx, client, msg.RoomID))

	case domain.MsgTypePing:
		client.SendMessage(&domain.PongMessage{Type: domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

// reply reports a failed operation to the calling connection only.
func (h *WSHandler) reply(ctx context.Context, client *hub.Client, msgType string, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidRoom),
		errors.Is(err, repository.ErrInvalidMessage):
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error()))
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("message_type", msgType).Msg("websocket operation failed")
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to process "+msgType))
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chathub", gin.WrapF(h.HandleWebSocket))
}
