package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Session is the per-connection state: who is connected and which rooms the
// connection currently belongs to.
type Session struct {
	ID            string
	UserID        string
	Username      string
	Authenticated bool
	CreatedAt     time.Time
	LastActiveAt  time.Time
	rooms         map[int]struct{}
	mu            sync.RWMutex
}

func NewSession(id, userID, username string, authenticated bool) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		UserID:        userID,
		Username:      username,
		Authenticated: authenticated,
		CreatedAt:     now,
		LastActiveAt:  now,
		rooms:         make(map[int]struct{}),
	}
}

// JoinRoom records membership and reports whether it is new.
func (s *Session) JoinRoom(roomID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

// LeaveRoom drops membership and reports whether there was one.
func (s *Session) LeaveRoom(roomID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

// LeaveAll drops every membership and returns the rooms that were left.
func (s *Session) LeaveAll() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := s.sortedRooms()
	s.rooms = make(map[int]struct{})
	return rooms
}

func (s *Session) IsInRoom(roomID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns the joined rooms in ascending order.
func (s *Session) Rooms() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedRooms()
}

func (s *Session) sortedRooms() []int {
	rooms := lo.Keys(s.rooms)
	sort.Ints(rooms)
	return rooms
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
