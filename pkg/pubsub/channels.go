package pubsub

import "fmt"

// Channel naming for room fan-out.
const (
	ChannelRoom = "chat:room:%d"
	PatternRoom = "chat:room:*"
)

// EventRoomBroadcast carries an already-encoded frame for every member of a room.
const EventRoomBroadcast = "room_broadcast"

// RoomChannel returns the channel name for a room.
func RoomChannel(roomID int) string {
	return fmt.Sprintf(ChannelRoom, roomID)
}
