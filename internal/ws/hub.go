package ws

import (
	"sort"
	"sync"
)

// Subscriber is a live connection, bound to an authenticated user, that can
// receive room events.
type Subscriber interface {
	ID() string
	UserID() int
	Send(payload []byte) error
}

// Hub maps chat rooms to the live connections subscribed to them. Membership
// is ephemeral and safe for concurrent use.
type Hub struct {
	rooms     map[int]map[string]Subscriber
	connRooms map[string]map[int]struct{}
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[int]map[string]Subscriber),
		connRooms: make(map[string]map[int]struct{}),
	}
}

// Join adds sub to the room. It reports whether the connection was newly added;
// joining twice is a no-op.
func (h *Hub) Join(chatID int, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[chatID]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[chatID] = members
	}
	if _, exists := members[sub.ID()]; exists {
		return false
	}
	members[sub.ID()] = sub

	joined, ok := h.connRooms[sub.ID()]
	if !ok {
		joined = make(map[int]struct{})
		h.connRooms[sub.ID()] = joined
	}
	joined[chatID] = struct{}{}
	return true
}

// Leave removes the connection from the room. Leaving a room the connection
// is not in is a no-op.
func (h *Hub) Leave(chatID int, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(chatID, connID)
}

func (h *Hub) leaveLocked(chatID int, connID string) bool {
	members, ok := h.rooms[chatID]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, chatID)
	}
	if joined, ok := h.connRooms[connID]; ok {
		delete(joined, chatID)
		if len(joined) == 0 {
			delete(h.connRooms, connID)
		}
	}
	return true
}

// LeaveUser removes every connection of userID from the room and returns the
// removed connections.
func (h *Hub) LeaveUser(chatID, userID int) []Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []Subscriber
	for connID, sub := range h.rooms[chatID] {
		if sub.UserID() != userID {
			continue
		}
		removed = append(removed, sub)
		h.leaveLocked(chatID, connID)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID() < removed[j].ID() })
	return removed
}

// MembersOf returns a snapshot of the room; later joins and leaves do not
// affect the returned slice.
func (h *Hub) MembersOf(chatID int) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[chatID]
	out := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		out = append(out, sub)
	}
	return out
}

// RoomsOf returns the rooms the connection is in, ascending.
func (h *Hub) RoomsOf(connID string) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedRooms(h.connRooms[connID])
}

// RemoveConnection drops the connection from every room it joined and returns
// those rooms.
func (h *Hub) RemoveConnection(connID string) []int {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := sortedRooms(h.connRooms[connID])
	for _, chatID := range rooms {
		h.leaveLocked(chatID, connID)
	}
	return rooms
}

// RoomCount returns the number of non-empty rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func sortedRooms(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for chatID := range set {
		out = append(out, chatID)
	}
	sort.Ints(out)
	return out
}
