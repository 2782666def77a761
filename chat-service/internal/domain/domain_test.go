package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessage_Validate(t *testing.T) {
	ok := NewChatMessage("hello", "bob", 2)
	assert.NoError(t, ok.Validate())

	assert.Error(t, NewChatMessage("", "bob", 1).Validate())
	assert.Error(t, NewChatMessage("hi", "", 1).Validate())
	assert.Error(t, NewChatMessage(strings.Repeat("a", MaxContentLength+1), "bob", 1).Validate())
	assert.Error(t, NewChatMessage("hi", strings.Repeat("u", MaxUsernameLength+1), 1).Validate())
	assert.NoError(t, NewChatMessage(strings.Repeat("é", MaxContentLength), "bob", 1).Validate())
}

func TestNewBotMessage(t *testing.T) {
	msg := NewBotMessage("AAPL quote is $150.25 per share", 1)
	assert.True(t, msg.IsBot)
	assert.Equal(t, BotUsername, msg.Username)
	assert.Equal(t, 1, msg.ChatRoomID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestSendMessageRequest_DefaultRoom(t *testing.T) {
	req := require.New(t)

	var msg SendMessageRequest
	req.NoError(json.Unmarshal([]byte(`{"type":"send_message","message":"hi"}`), &msg))
	req.Equal(DefaultRoomID, msg.Room())

	req.NoError(json.Unmarshal([]byte(`{"type":"send_message","message":"hi","room_id":7}`), &msg))
	req.Equal(7, msg.Room())
}

func TestSession_Rooms(t *testing.T) {
	s := NewSession("c1", "", "Anonymous", false)

	assert.True(t, s.JoinRoom(3))
	assert.False(t, s.JoinRoom(3))
	assert.True(t, s.JoinRoom(1))
	assert.Equal(t, []int{1, 3}, s.Rooms())

	assert.True(t, s.LeaveRoom(3))
	assert.False(t, s.LeaveRoom(3))
	assert.False(t, s.IsInRoom(3))

	assert.Equal(t, []int{1}, s.LeaveAll())
	assert.Empty(t, s.Rooms())
}

func TestLoadRecentMessages_EmptyEncodesAsArray(t *testing.T) {
	data, err := json.Marshal(NewLoadRecentMessages(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LoadRecentMessages","messages":[]}`, string(data))
}
