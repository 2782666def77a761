package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/config"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/hub"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/mq"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/repository"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/service"
	"github.com/Lucca-Muniz/Chat/pkg/contracts"
	"github.com/Lucca-Muniz/Chat/pkg/database"
	"github.com/Lucca-Muniz/Chat/pkg/jwt"
	"github.com/Lucca-Muniz/Chat/pkg/middleware"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
)

const testSecret = "test-secret-with-enough-length"

type testServer struct {
	srv      *httptest.Server
	broker   *queue.MemoryBroker
	messages service.MessageService
	tokens   *jwt.Manager
}

func newTestServer(t *testing.T, required bool, wsCfg config.WebSocketConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "chat.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.MessageModel{}))
	t.Cleanup(func() { _ = database.Close(db) })

	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(nil)
	require.NoError(t, h.Start(ctx))

	broker := queue.NewMemoryBroker()
	tokens, err := jwt.NewManager(jwt.Config{Secret: testSecret, Issuer: "FinancialChatApp", Audience: "FinancialChatUsers"})
	require.NoError(t, err)
	auth := middleware.NewAuthMiddleware(tokens, required)

	messages := service.NewMessageService(repository.NewGormMessageRepository(db), nil, 0)
	publisher := mq.NewBrokerCommandPublisher(broker, contracts.StockCommandQueue)
	chat := service.NewChatService(h, messages, publisher, 50)

	if wsCfg.PingInterval == 0 {
		wsCfg.PingInterval = time.Minute
		wsCfg.PongWait = time.Minute
		wsCfg.WriteWait = time.Second
		wsCfg.MaxMessageSize = 4096
	}

	r := gin.New()
	NewWSHandler(ctx, h, chat, auth, wsCfg).RegisterRoutes(r)
	NewHTTPHandler(messages, auth, 50, 100).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-h.Done()
		broker.Close()
	})

	return &testServer{srv: srv, broker: broker, messages: messages, tokens: tokens}
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/chathub"
	if token != "" {
		url += "?access_token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestWebSocket_AnonymousChat(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{})
	alice := s.dial(t, "")
	bob := s.dial(t, "")

	hello := readFrame(t, alice)
	assert.Equal(t, domain.MsgTypeConnected, hello["type"])
	assert.Equal(t, "Anonymous", hello["username"])
	assert.NotEmpty(t, hello["connection_id"])
	readFrame(t, bob)

	send(t, alice, map[string]interface{}{"type": "join_chat_room", "room_id": 1})
	recent := readFrame(t, alice)
	assert.Equal(t, domain.MsgTypeLoadRecentMessages, recent["type"])
	assert.Empty(t, recent["messages"])

	send(t, bob, map[string]interface{}{"type": "join_chat_room", "room_id": 1})
	readFrame(t, bob)

	send(t, alice, map[string]interface{}{"type": "send_message", "message": "hello room"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		assert.Equal(t, domain.MsgTypeReceiveMessage, frame["type"])
		msg := frame["message"].(map[string]interface{})
		assert.Equal(t, "hello room", msg["content"])
		assert.Equal(t, "Anonymous", msg["username"])
		assert.EqualValues(t, 1, msg["chatRoomId"])
		assert.Equal(t, false, msg["isBot"])
	}

	send(t, alice, map[string]interface{}{"type": "ping"})
	assert.Equal(t, domain.MsgTypePong, readFrame(t, alice)["type"])
}

func TestWebSocket_AuthenticatedUsername(t *testing.T) {
	s := newTestServer(t, true, config.WebSocketConfig{})
	token, err := s.tokens.GenerateToken("42", "alice")
	require.NoError(t, err)

	conn := s.dial(t, token)
	hello := readFrame(t, conn)
	assert.Equal(t, "alice", hello["username"])
}

func TestWebSocket_RejectsMissingTokenWhenRequired(t *testing.T) {
	s := newTestServer(t, true, config.WebSocketConfig{})
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/chathub"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_StockCommandIsQueued(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{})
	conn := s.dial(t, "")
	readFrame(t, conn)

	send(t, conn, map[string]interface{}{"type": "send_message", "message": "/stock=AAPL.US", "room_id": 3})
	send(t, conn, map[string]interface{}{"type": "ping"})
	assert.Equal(t, domain.MsgTypePong, readFrame(t, conn)["type"])

	require.Equal(t, 1, s.broker.Len(contracts.StockCommandQueue))

	msgs, err := s.messages.GetRecentMessages(context.Background(), 3, 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWebSocket_ErrorsGoToCallerOnly(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{})
	alice := s.dial(t, "")
	bob := s.dial(t, "")
	readFrame(t, alice)
	readFrame(t, bob)

	send(t, bob, map[string]interface{}{"type": "join_chat_room", "room_id": 1})
	readFrame(t, bob)

	send(t, alice, map[string]interface{}{"type": "send_message", "message": "   "})
	frame := readFrame(t, alice)
	assert.Equal(t, domain.MsgTypeError, frame["type"])
	assert.Equal(t, domain.ErrCodeBadRequest, frame["code"])

	send(t, alice, map[string]interface{}{"type": "send_message", "message": strings.Repeat("x", 1001)})
	frame = readFrame(t, alice)
	assert.Equal(t, domain.ErrCodeBadRequest, frame["code"])

	send(t, alice, map[string]interface{}{"type": "dance"})
	assert.Equal(t, domain.ErrCodeBadRequest, readFrame(t, alice)["code"])

	send(t, bob, map[string]interface{}{"type": "ping"})
	assert.Equal(t, domain.MsgTypePong, readFrame(t, bob)["type"])
}

func TestWebSocket_RateLimited(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{
		PingInterval:   time.Minute,
		PongWait:       time.Minute,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		RateLimit:      0.001,
		RateBurst:      2,
	})
	conn := s.dial(t, "")
	readFrame(t, conn)

	for i := 0; i < 3; i++ {
		send(t, conn, map[string]interface{}{"type": "ping"})
	}
	assert.Equal(t, domain.MsgTypePong, readFrame(t, conn)["type"])
	assert.Equal(t, domain.MsgTypePong, readFrame(t, conn)["type"])

	frame := readFrame(t, conn)
	assert.Equal(t, domain.MsgTypeError, frame["type"])
	assert.Equal(t, domain.ErrCodeRateLimited, frame["code"])
}

func TestHTTP_GetMessages(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{})
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.messages.AddMessage(ctx, domain.NewChatMessage(text, "bob", 7)))
	}

	resp, err := http.Get(s.srv.URL + "/api/chat/messages/7?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                 `json:"success"`
		Data    []domain.ChatMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "two", body.Data[0].Content)
	assert.Equal(t, "three", body.Data[1].Content)
}

func TestHTTP_GetMessagesValidation(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{})

	for _, path := range []string{"/api/chat/messages/abc", "/api/chat/messages/0", "/api/chat/messages/1?limit=-3"} {
		resp, err := http.Get(s.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestHTTP_GetMessagesRequiresTokenWhenConfigured(t *testing.T) {
	s := newTestServer(t, true, config.WebSocketConfig{})

	resp, err := http.Get(s.srv.URL + "/api/chat/messages/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := s.tokens.GenerateToken("42", "alice")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/api/chat/messages/1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_Health(t *testing.T) {
	s := newTestServer(t, false, config.WebSocketConfig{})

	for _, path := range []string{"/health", "/healthz"} {
		resp, err := http.Get(s.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
