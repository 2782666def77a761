package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/service"
	"github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/middleware"
	"github.com/Lucca-Muniz/Chat/pkg/response"
)

type HTTPHandler struct {
	messageService service.MessageService
	auth           *middleware.AuthMiddleware
	defaultLimit   int
	maxLimit       int
}

func NewHTTPHandler(messageService service.MessageService, auth *middleware.AuthMiddleware, defaultLimit, maxLimit int) *HTTPHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &HTTPHandler{
		messageService: messageService,
		auth:           auth,
		defaultLimit:   defaultLimit,
		maxLimit:       maxLimit,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/chat", h.auth.RequireAuth())
	{
		api.GET("/messages/:room_id", h.GetMessages)
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}

// GetMessages returns the recent messages of a room, oldest first.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil || roomID <= 0 {
		response.BadRequest(c, "room_id must be a positive integer")
		return
	}

	limit := h.defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(parsedLimit, h.maxLimit)
	}

	msgs, err := h.messageService.GetRecentMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Int(log.FieldRoomID, roomID).Msg("failed to get recent messages")
		response.InternalError(c, "failed to get chat history")
		return
	}

	response.Success(c, msgs)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
