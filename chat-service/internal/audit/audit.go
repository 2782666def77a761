package audit

import (
	"context"

	"github.com/Lucca-Muniz/Chat/pkg/log"
)

// Audit actions for chat-service.
const (
	ActionConnect      = "chat.connect"
	ActionDisconnect   = "chat.disconnect"
	ActionJoinRoom     = "chat.join_room"
	ActionLeaveRoom    = "chat.leave_room"
	ActionSendMessage  = "chat.send_message"
	ActionStockCommand = "chat.stock_command"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, username string, roomID int, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Int(log.FieldRoomID, roomID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, username string, roomID int, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Int(log.FieldRoomID, roomID).
		Str(FieldDetail, detail).
		Msg(msg)
}
